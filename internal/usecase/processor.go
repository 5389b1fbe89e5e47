// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"log"

	"github.com/naka-gawa/milestone-sweeper/internal/domain"
	"github.com/naka-gawa/milestone-sweeper/internal/gateway"
)

// defaultOperations is the per-run budget of page fetches. One fetched
// page costs exactly one operation, regardless of how many milestones it
// holds or how many mutations it produces.
const defaultOperations = 100

// Processor is the use case that sweeps a repository's milestones:
// it closes the finished ones and, when reopening is enabled, reopens
// closed milestones that have regained open issues.
type Processor struct {
	source gateway.Source
	opts   domain.Options
	logger *log.Logger
}

// NewProcessor creates a new Processor instance. The milestone source is
// injected so callers can substitute their own fetch strategy.
func NewProcessor(source gateway.Source, opts domain.Options, logger *log.Logger) *Processor {
	return &Processor{
		source: source,
		opts:   opts,
		logger: logger,
	}
}

// Run performs one sweep. Milestone pages are pulled and triaged one at a
// time, strictly sequentially, until the candidates or the operations
// budget run out. Any error from the source or a mutation aborts the run;
// mutations already applied stay applied.
func (p *Processor) Run(ctx context.Context) (*domain.RunReport, error) {
	p.logger.Println("Usecase: Starting milestone sweep...")
	report := &domain.RunReport{
		Closed:         []*domain.Milestone{},
		Reopened:       []*domain.Milestone{},
		OperationsLeft: defaultOperations,
	}

	for page := 1; ; page++ {
		if report.OperationsLeft <= 0 {
			p.logger.Println("Warning: operations budget exhausted, stopping the sweep early")
			break
		}

		milestones, err := p.fetchPage(ctx, page, report)
		if err != nil {
			return nil, err
		}
		report.OperationsLeft--

		if len(milestones) == 0 && !p.opts.ReopenActive {
			p.logger.Printf("Page %d is empty, no more candidates\n", page)
			break
		}
		// Related candidates are expected to fit on the first page; going
		// further would only re-scan the same narrow set. Reopen-active
		// keeps paginating for the closed side of the union.
		if p.opts.RelatedMode() && !p.opts.ReopenActive {
			if report.OperationsLeft < defaultOperations-1 {
				p.logger.Println("Related mode: candidate set already scanned, stopping")
				break
			}
			if report.RelatedNotFound {
				p.logger.Println("Related mode: no related milestone found, stopping")
				break
			}
		}

		for _, m := range milestones {
			if err := p.triage(ctx, m, report); err != nil {
				return nil, err
			}
		}
	}

	p.logger.Printf("Usecase: Sweep complete, closed %d and reopened %d milestone(s)\n",
		len(report.Closed), len(report.Reopened))
	return report, nil
}

// fetchPage selects the fetch mode for the run and returns one page of
// candidate milestones.
func (p *Processor) fetchPage(ctx context.Context, page int, report *domain.RunReport) ([]*domain.Milestone, error) {
	if p.opts.RelatedMode() {
		return p.relatedCandidates(ctx, report)
	}
	return p.source.FetchMilestones(ctx, page, p.opts.ReopenActive)
}

// relatedCandidates derives the candidate set from the triggering commit.
// Only push-style triggers carry a commit; without one there is nothing
// to derive from and the set is empty, which the loop reads as "no more
// candidates" rather than a failure.
func (p *Processor) relatedCandidates(ctx context.Context, report *domain.RunReport) ([]*domain.Milestone, error) {
	if p.opts.CommitSHA == "" {
		p.logger.Println("Related mode: no trigger commit, nothing to derive candidates from")
		return nil, nil
	}
	milestones, prs, err := p.source.MilestonesForCommit(ctx, p.opts.CommitSHA)
	if err != nil {
		return nil, err
	}
	report.RelatedPullRequests = prs
	return milestones, nil
}

// triage applies the sweep policy to a single milestone. Precedence
// matters: the reopen check runs before the minimum-issues threshold, so
// a closed milestone with open issues is reopened no matter how few
// issues it has in total.
func (p *Processor) triage(ctx context.Context, m *domain.Milestone, report *domain.RunReport) error {
	p.logger.Printf("Inspecting milestone #%d %q (state=%s open=%d closed=%d)\n",
		m.Number, m.Title, m.State, m.OpenIssues, m.ClosedIssues)

	if m.State == domain.StateClosed && p.opts.ReopenActive && m.OpenIssues > 0 {
		return p.openMilestone(ctx, m, report)
	}
	if m.TotalIssues() < p.opts.MinimumIssues {
		p.logger.Printf("  Skipping #%d: %d issue(s) is below the minimum of %d\n",
			m.Number, m.TotalIssues(), p.opts.MinimumIssues)
		return nil
	}
	if m.State == domain.StateOpen && m.OpenIssues > 0 {
		p.logger.Printf("  Skipping #%d: %d issue(s) still open\n", m.Number, m.OpenIssues)
		return nil
	}
	if m.State == domain.StateOpen {
		return p.closeMilestone(ctx, m, report)
	}
	p.logger.Printf("  Skipping #%d: already closed\n", m.Number)
	return nil
}

// closeMilestone records the milestone as closed and, unless running in
// debug-only mode, asks the tracker to close it.
func (p *Processor) closeMilestone(ctx context.Context, m *domain.Milestone, report *domain.RunReport) error {
	report.Closed = append(report.Closed, m)
	if p.opts.DebugOnly {
		p.logger.Printf("  Debug-only: would close milestone #%d\n", m.Number)
		return nil
	}
	p.logger.Printf("  Closing milestone #%d\n", m.Number)
	return p.source.SetMilestoneState(ctx, m.Number, domain.StateClosed)
}

// openMilestone is the symmetric mutator for the reopen path.
func (p *Processor) openMilestone(ctx context.Context, m *domain.Milestone, report *domain.RunReport) error {
	report.Reopened = append(report.Reopened, m)
	if p.opts.DebugOnly {
		p.logger.Printf("  Debug-only: would reopen milestone #%d\n", m.Number)
		return nil
	}
	p.logger.Printf("  Reopening milestone #%d (%d open issue(s))\n", m.Number, m.OpenIssues)
	return p.source.SetMilestoneState(ctx, m.Number, domain.StateOpen)
}
