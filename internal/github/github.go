package github

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lucasnoah/gatekeeper/internal/labels"
)

// CmdRunner provides command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec. When Token is set it is passed to gh
// as GH_TOKEN.
type ExecRunner struct {
	Token string
}

func (r *ExecRunner) Run(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	if r.Token != "" {
		cmd.Env = append(os.Environ(), "GH_TOKEN="+r.Token)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Client provides GitHub issue operations.
type Client struct {
	cmd        CmdRunner
	repo       string
	newBackOff func() backoff.BackOff
	progress   io.Writer
}

// NewClient creates a GitHub client. Reads are retried with exponential
// backoff on transient failures.
func NewClient(cmd CmdRunner) *Client {
	return &Client{
		cmd: cmd,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxElapsedTime = 30 * time.Second
			return bo
		},
	}
}

// SetRepo pins the client to an "owner/name" repository instead of the
// repository of the current directory.
func (c *Client) SetRepo(repo string) {
	c.repo = repo
}

// SetBackOff overrides the retry policy for reads (for testing).
func (c *Client) SetBackOff(fn func() backoff.BackOff) {
	c.newBackOff = fn
}

// SetProgress sets a writer for retry log lines.
func (c *Client) SetProgress(w io.Writer) {
	c.progress = w
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.progress != nil {
		fmt.Fprintf(c.progress, "  → "+format+"\n", args...)
	}
}

// Issue represents a GitHub issue.
type Issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	State  string  `json:"state"`
	Labels []Label `json:"labels"`
}

// Label represents a GitHub label.
type Label struct {
	Name string `json:"name"`
}

// LabelNames returns the names of the issue's labels in order.
func (i *Issue) LabelNames() []string {
	names := make([]string, len(i.Labels))
	for j, l := range i.Labels {
		names[j] = l.Name
	}
	return names
}

// Comment is an issue comment.
type Comment struct {
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt"`
	Author    struct {
		Login string `json:"login"`
	} `json:"author"`
}

// ValidateIssueNumber checks that an issue number is positive.
func ValidateIssueNumber(n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid issue number %d: must be positive", n)
	}
	return nil
}

func (c *Client) repoArgs(args ...string) []string {
	if c.repo != "" {
		args = append(args, "--repo", c.repo)
	}
	return args
}

func (c *Client) apiPath(format string, args ...interface{}) string {
	repo := "{owner}/{repo}"
	if c.repo != "" {
		repo = c.repo
	}
	return "repos/" + repo + "/" + fmt.Sprintf(format, args...)
}

// transient reports whether a gh failure is worth retrying.
func transient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"http 5", "rate limit", "timeout", "timed out", "connection reset"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// read runs a gh command, retrying transient failures.
func (c *Client) read(args ...string) (string, error) {
	var out string
	attempt := 0
	op := func() error {
		attempt++
		o, err := c.cmd.Run(args...)
		if err != nil {
			if !transient(err) {
				return backoff.Permanent(err)
			}
			c.logf("gh %s failed (attempt %d), retrying: %v", args[0], attempt, err)
			return err
		}
		out = o
		return nil
	}
	if err := backoff.Retry(op, c.newBackOff()); err != nil {
		return "", err
	}
	return out, nil
}

// GetIssue fetches a GitHub issue by number.
func (c *Client) GetIssue(number int) (*Issue, error) {
	if err := ValidateIssueNumber(number); err != nil {
		return nil, err
	}

	out, err := c.read(c.repoArgs("issue", "view", strconv.Itoa(number), "--json", "number,title,body,state,labels")...)
	if err != nil {
		return nil, fmt.Errorf("get issue %d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal([]byte(out), &issue); err != nil {
		return nil, fmt.Errorf("parse issue JSON: %w", err)
	}
	return &issue, nil
}

// ListComments returns the comments on an issue, oldest first.
func (c *Client) ListComments(number int) ([]Comment, error) {
	if err := ValidateIssueNumber(number); err != nil {
		return nil, err
	}

	out, err := c.read(c.repoArgs("issue", "view", strconv.Itoa(number), "--json", "comments")...)
	if err != nil {
		return nil, fmt.Errorf("list comments on issue %d: %w", number, err)
	}

	var resp struct {
		Comments []Comment `json:"comments"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		return nil, fmt.Errorf("parse comments JSON: %w", err)
	}
	return resp.Comments, nil
}

// AddComment posts a comment on an issue.
func (c *Client) AddComment(number int, body string) error {
	if err := ValidateIssueNumber(number); err != nil {
		return err
	}
	if _, err := c.cmd.Run(c.repoArgs("issue", "comment", strconv.Itoa(number), "--body", body)...); err != nil {
		return fmt.Errorf("comment on issue %d: %w", number, err)
	}
	return nil
}

// SetLabels replaces the full label set of an issue in one request.
func (c *Client) SetLabels(number int, names []string) error {
	if err := ValidateIssueNumber(number); err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("set labels on issue %d: label set must not be empty", number)
	}
	args := []string{"api", "--method", "PUT", c.apiPath("issues/%d/labels", number)}
	for _, n := range names {
		args = append(args, "-f", "labels[]="+n)
	}
	if _, err := c.cmd.Run(args...); err != nil {
		return fmt.Errorf("set labels on issue %d: %w", number, err)
	}
	return nil
}

var issueURLRe = regexp.MustCompile(`/issues/(\d+)\s*$`)

// CreateIssue opens an issue and returns its number.
func (c *Client) CreateIssue(title, body string, labelNames []string) (int, error) {
	args := []string{"issue", "create", "--title", title, "--body", body}
	for _, l := range labelNames {
		args = append(args, "--label", l)
	}
	out, err := c.cmd.Run(c.repoArgs(args...)...)
	if err != nil {
		return 0, fmt.Errorf("create issue: %w", err)
	}
	m := issueURLRe.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("create issue: unexpected gh output %q", out)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("create issue: parse number: %w", err)
	}
	return n, nil
}

// EnsureLabels creates or updates each label definition in the repository.
func (c *Client) EnsureLabels(defs []labels.Definition) error {
	for _, d := range defs {
		args := []string{"label", "create", d.Name, "--color", d.Color, "--description", d.Description, "--force"}
		if _, err := c.cmd.Run(c.repoArgs(args...)...); err != nil {
			return fmt.Errorf("ensure label %q: %w", d.Name, err)
		}
	}
	return nil
}
