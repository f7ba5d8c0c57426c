// Copyright 2025 Stacklok, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sourcecontrol

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v63/github"
	"golang.org/x/oauth2"

	"github.com/stacklok/hookrelay/internal/config"
)

// GitHubClient implements Client against the real source-control REST API.
type GitHubClient struct {
	gh          *github.Client
	authorName  string
	authorEmail string
}

// NewGitHubClient builds a GitHubClient authenticated with cfg.Token. If
// cfg.APIBaseURL is set, it targets a GitHub Enterprise instance instead of
// the public API.
func NewGitHubClient(cfg config.SourceControlConfig) (*GitHubClient, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)

	gh := github.NewClient(tc)
	if cfg.APIBaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(cfg.APIBaseURL, cfg.APIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring enterprise base URL: %w", err)
		}
	}

	return &GitHubClient{gh: gh, authorName: cfg.CommitAuthorName, authorEmail: cfg.CommitAuthorEmail}, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo %q must be in owner/name form", repo)
	}
	return parts[0], parts[1], nil
}

// GetContent implements Client.
func (c *GitHubClient) GetContent(ctx context.Context, repo, path, branch string) (string, string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", "", err
	}

	fileContent, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, name, path, &github.RepositoryContentGetOptions{Ref: branch})
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("getting content %s/%s@%s: %w", repo, path, branch, err)
	}
	if fileContent == nil {
		return "", "", ErrNotFound
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return "", "", fmt.Errorf("decoding content %s/%s@%s: %w", repo, path, branch, err)
	}

	return content, fileContent.GetSHA(), nil
}

// PutContent implements Client.
func (c *GitHubClient) PutContent(ctx context.Context, repo, path, branch, content, message, expectedHash string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(branch),
		Committer: &github.CommitAuthor{
			Name:  github.String(c.authorName),
			Email: github.String(c.authorEmail),
		},
	}
	if expectedHash != "" {
		opts.SHA = github.String(expectedHash)
	}

	resp, httpResp, err := c.gh.Repositories.CreateFile(ctx, owner, name, path, opts)
	if httpResp != nil && httpResp.StatusCode == http.StatusConflict {
		return "", ErrConflict
	}
	if err != nil {
		return "", fmt.Errorf("writing content %s/%s@%s: %w", repo, path, branch, err)
	}

	return resp.GetContent().GetSHA(), nil
}

var _ Client = (*GitHubClient)(nil)
