package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"

	"github.com/bull/docchat/internal/extract"
)

var ErrBadRepoSpec = errors.New("repository must look like owner/repo[/path][@ref]")

// RepoSpec points at a directory or file in a GitHub repository.
type RepoSpec struct {
	Owner string
	Repo  string
	Path  string
	Ref   string // branch, tag or SHA; empty uses the default branch
}

// ParseRepoSpec parses "owner/repo/some/dir@ref".
func ParseRepoSpec(s string) (RepoSpec, error) {
	var spec RepoSpec
	if at := strings.LastIndex(s, "@"); at >= 0 {
		spec.Ref = s[at+1:]
		s = s[:at]
	}
	parts := strings.SplitN(strings.Trim(s, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RepoSpec{}, fmt.Errorf("%w: %q", ErrBadRepoSpec, s)
	}
	spec.Owner, spec.Repo = parts[0], parts[1]
	if len(parts) == 3 {
		spec.Path = parts[2]
	}
	return spec, nil
}

func (s RepoSpec) String() string {
	out := s.Owner + "/" + s.Repo
	if s.Path != "" {
		out += "/" + s.Path
	}
	if s.Ref != "" {
		out += "@" + s.Ref
	}
	return out
}

// GitHub fetches documents from repositories through the contents API.
type GitHub struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHub creates a rate-limit-aware client, authenticated when token is set.
// The waiter handles both primary and secondary (abuse) rate limits.
func NewGitHub(token string, logger *slog.Logger) (*GitHub, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}
	client := github.NewClient(rateLimiter)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return newGitHub(client, logger), nil
}

func newGitHub(client *github.Client, logger *slog.Logger) *GitHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHub{client: client, logger: logger}
}

// Load lists spec recursively and fetches every file supports accepts.
// Source names are "owner/repo/path" so citations point back to GitHub.
func (g *GitHub) Load(ctx context.Context, spec RepoSpec, supports SupportsFunc) ([]extract.Source, error) {
	files, err := g.list(ctx, spec, spec.Path, supports)
	if err != nil {
		return nil, err
	}

	sources := make([]extract.Source, 0, len(files))
	for _, p := range files {
		data, err := g.fetch(ctx, spec, p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, extract.Source{
			Name: path.Join(spec.Owner, spec.Repo, p),
			Data: data,
		})
	}
	g.logger.Info("Fetched repository documents", "repo", spec.String(), "files", len(sources))
	return sources, nil
}

// list walks directories depth-first. A file path is returned as is.
func (g *GitHub) list(ctx context.Context, spec RepoSpec, dir string, supports SupportsFunc) ([]string, error) {
	file, entries, _, err := g.client.Repositories.GetContents(ctx, spec.Owner, spec.Repo, dir, g.refOpts(spec))
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", dir, err)
	}
	if file != nil {
		return []string{file.GetPath()}, nil
	}

	var files []string
	for _, item := range entries {
		switch item.GetType() {
		case "file":
			if accepts(supports, item.GetName()) {
				files = append(files, item.GetPath())
			}
		case "dir":
			sub, err := g.list(ctx, spec, item.GetPath(), supports)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

func (g *GitHub) fetch(ctx context.Context, spec RepoSpec, p string) ([]byte, error) {
	file, _, _, err := g.client.Repositories.GetContents(ctx, spec.Owner, spec.Repo, p, g.refOpts(spec))
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", p, err)
	}
	if file == nil {
		return nil, fmt.Errorf("no file content returned for %s", p)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", p, err)
	}
	return []byte(content), nil
}

func (g *GitHub) refOpts(spec RepoSpec) *github.RepositoryContentGetOptions {
	if spec.Ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: spec.Ref}
}
