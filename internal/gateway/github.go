// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"github.com/naka-gawa/milestone-sweeper/internal/domain"
)

// PageSize is the fixed number of milestones requested per page.
const PageSize = 100

// Source defines the behavior of a gateway for reading and mutating
// milestones in the external tracker. The sweep processor only ever
// talks to this interface, so tests (or callers with their own fetch
// strategy) can substitute it.
type Source interface {
	// FetchMilestones returns one page of open milestones; with
	// includeClosed the closed-state page of the same number is unioned
	// in. Pages are numbered from 1.
	FetchMilestones(ctx context.Context, page int, includeClosed bool) ([]*domain.Milestone, error)
	// MilestonesForCommit returns the milestones attached to the pull
	// requests associated with the given commit, deduplicated, along
	// with the numbers of the pull requests that were inspected.
	MilestonesForCommit(ctx context.Context, sha string) ([]*domain.Milestone, []int, error)
	// SetMilestoneState transitions a milestone to "open" or "closed".
	SetMilestoneState(ctx context.Context, number int, state string) error
}

// GitHubGateway is the concrete implementation of the Source interface.
type GitHubGateway struct {
	owner         string
	repo          string
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        *log.Logger
}

// commitPullRequestsQuery looks up the pull requests associated with a
// commit, and each one's linked milestone if it has any.
type commitPullRequestsQuery struct {
	Repository struct {
		Object struct {
			Commit struct {
				AssociatedPullRequests struct {
					Nodes []struct {
						Number    int
						Milestone struct {
							Number int
						}
					}
				} `graphql:"associatedPullRequests(first: 100)"`
			} `graphql:"... on Commit"`
		} `graphql:"object(oid: $oid)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
func NewGitHubGateway(token, owner, repo string, logger *log.Logger) (Source, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}
	return &GitHubGateway{
		owner:         owner,
		repo:          repo,
		restClient:    github.NewClient(httpClient),
		graphqlClient: githubv4.NewClient(httpClient),
		logger:        logger,
	}, nil
}

func (g *GitHubGateway) FetchMilestones(ctx context.Context, page int, includeClosed bool) ([]*domain.Milestone, error) {
	if !includeClosed {
		return g.listMilestones(ctx, domain.StateOpen, page)
	}

	// When reopening is on the closed milestones are candidates too, so
	// both state filters are fetched for the same page number and unioned.
	var open, closed []*domain.Milestone
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		open, err = g.listMilestones(egCtx, domain.StateOpen, page)
		return err
	})
	eg.Go(func() error {
		var err error
		closed, err = g.listMilestones(egCtx, domain.StateClosed, page)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return unionByNumber(open, closed), nil
}

func (g *GitHubGateway) listMilestones(ctx context.Context, state string, page int) ([]*domain.Milestone, error) {
	g.logger.Printf("Fetching page %d of %s milestones...\n", page, state)
	opts := &github.MilestoneListOptions{
		State:       state,
		ListOptions: github.ListOptions{Page: page, PerPage: PageSize},
	}
	result, _, err := g.restClient.Issues.ListMilestones(ctx, g.owner, g.repo, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s milestones: %w", state, err)
	}
	milestones := make([]*domain.Milestone, 0, len(result))
	for _, m := range result {
		milestones = append(milestones, toDomainMilestone(m))
	}
	return milestones, nil
}

// MilestonesForCommit resolves the commit's associated pull requests with
// the GraphQL API, then loads each linked milestone through the REST API,
// where the open/closed issue counts are already aggregated.
func (g *GitHubGateway) MilestonesForCommit(ctx context.Context, sha string) ([]*domain.Milestone, []int, error) {
	g.logger.Printf("Looking up pull requests associated with commit %s...\n", sha)
	variables := map[string]interface{}{
		"owner": githubv4.String(g.owner),
		"name":  githubv4.String(g.repo),
		"oid":   githubv4.GitObjectID(sha),
	}
	var q commitPullRequestsQuery
	if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
		return nil, nil, fmt.Errorf("failed to query pull requests for commit %s: %w", sha, err)
	}

	var prNumbers []int
	var candidates []int
	seen := make(map[int]bool)
	for _, node := range q.Repository.Object.Commit.AssociatedPullRequests.Nodes {
		prNumbers = append(prNumbers, node.Number)
		// Number 0 means the pull request carries no milestone.
		number := node.Milestone.Number
		if number == 0 || seen[number] {
			continue
		}
		seen[number] = true
		candidates = append(candidates, number)
	}

	milestones := make([]*domain.Milestone, 0, len(candidates))
	for _, number := range candidates {
		m, _, err := g.restClient.Issues.GetMilestone(ctx, g.owner, g.repo, number)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get milestone %d: %w", number, err)
		}
		milestones = append(milestones, toDomainMilestone(m))
	}
	g.logger.Printf("Found %d related milestone(s) across %d pull request(s)\n", len(milestones), len(prNumbers))
	return milestones, prNumbers, nil
}

// SetMilestoneState asks GitHub to transition the milestone. Setting a
// state the milestone is already in is a no-op on GitHub's side.
func (g *GitHubGateway) SetMilestoneState(ctx context.Context, number int, state string) error {
	update := &github.Milestone{State: github.String(state)}
	_, _, err := g.restClient.Issues.EditMilestone(ctx, g.owner, g.repo, number, update)
	if err != nil {
		return fmt.Errorf("failed to set milestone %d state to %s: %w", number, state, err)
	}
	return nil
}

func toDomainMilestone(m *github.Milestone) *domain.Milestone {
	return &domain.Milestone{
		ID:           m.GetID(),
		Number:       m.GetNumber(),
		Title:        m.GetTitle(),
		Description:  m.GetDescription(),
		UpdatedAt:    m.GetUpdatedAt().Time,
		OpenIssues:   m.GetOpenIssues(),
		ClosedIssues: m.GetClosedIssues(),
		State:        m.GetState(),
	}
}

// unionByNumber merges the result sets, dropping duplicates by milestone
// number. State partitions results so overlap should not normally happen,
// but the union tolerates it.
func unionByNumber(sets ...[]*domain.Milestone) []*domain.Milestone {
	seen := make(map[int]bool)
	union := []*domain.Milestone{}
	for _, set := range sets {
		for _, m := range set {
			if seen[m.Number] {
				continue
			}
			seen[m.Number] = true
			union = append(union, m)
		}
	}
	return union
}
