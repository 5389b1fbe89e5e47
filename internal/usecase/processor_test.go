package usecase

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/naka-gawa/milestone-sweeper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// mockSource is a mock implementation of the gateway.Source interface.
// It lets the tests drive the processor without making real API calls.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchMilestones(ctx context.Context, page int, includeClosed bool) ([]*domain.Milestone, error) {
	args := m.Called(ctx, page, includeClosed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Milestone), args.Error(1)
}

func (m *mockSource) MilestonesForCommit(ctx context.Context, sha string) ([]*domain.Milestone, []int, error) {
	args := m.Called(ctx, sha)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]*domain.Milestone), args.Get(1).([]int), args.Error(2)
}

func (m *mockSource) SetMilestoneState(ctx context.Context, number int, state string) error {
	args := m.Called(ctx, number, state)
	return args.Error(0)
}

// numbers reduces a milestone list to the milestone numbers, which is all
// the triage assertions care about.
func numbers(milestones []*domain.Milestone) []int {
	result := []int{}
	for _, m := range milestones {
		result = append(result, m.Number)
	}
	return result
}

// TestProcessor_Run_Triage checks the per-milestone policy with a
// table-driven approach: one populated page followed by empty pages.
func TestProcessor_Run_Triage(t *testing.T) {
	testCases := []struct {
		name             string
		opts             domain.Options
		page             []*domain.Milestone
		expectedClosed   []int
		expectedReopened []int
		// expectedCalls maps milestone number to the state the mutation
		// boundary must be asked for; its size is the exact expected
		// number of mutating calls.
		expectedCalls map[int]string
	}{
		{
			name:           "closes an open milestone with enough issues and none open",
			opts:           domain.Options{MinimumIssues: 3},
			page:           []*domain.Milestone{{Number: 5, State: domain.StateOpen, OpenIssues: 0, ClosedIssues: 4}},
			expectedClosed: []int{5},
			expectedCalls:  map[int]string{5: domain.StateClosed},
		},
		{
			name:           "leaves a milestone with open issues untouched",
			opts:           domain.Options{MinimumIssues: 3},
			page:           []*domain.Milestone{{Number: 6, State: domain.StateOpen, OpenIssues: 1, ClosedIssues: 4}},
			expectedClosed: []int{},
		},
		{
			name:           "leaves a milestone below the minimum untouched",
			opts:           domain.Options{MinimumIssues: 3},
			page:           []*domain.Milestone{{Number: 7, State: domain.StateOpen, OpenIssues: 0, ClosedIssues: 2}},
			expectedClosed: []int{},
		},
		{
			name:             "reopens a closed milestone with open issues regardless of the minimum",
			opts:             domain.Options{MinimumIssues: 3, ReopenActive: true},
			page:             []*domain.Milestone{{Number: 8, State: domain.StateClosed, OpenIssues: 2, ClosedIssues: 0}},
			expectedReopened: []int{8},
			expectedCalls:    map[int]string{8: domain.StateOpen},
		},
		{
			name:           "never mutates closed milestones without reopen-active",
			opts:           domain.Options{MinimumIssues: 0},
			page:           []*domain.Milestone{{Number: 9, State: domain.StateClosed, OpenIssues: 2, ClosedIssues: 1}},
			expectedClosed: []int{},
		},
		{
			name:           "debug-only records the close without calling the mutation boundary",
			opts:           domain.Options{MinimumIssues: 3, DebugOnly: true},
			page:           []*domain.Milestone{{Number: 5, State: domain.StateOpen, OpenIssues: 0, ClosedIssues: 4}},
			expectedClosed: []int{5},
		},
		{
			name: "applies the policy independently to every milestone on a page",
			opts: domain.Options{MinimumIssues: 3, ReopenActive: true},
			page: []*domain.Milestone{
				{Number: 5, State: domain.StateOpen, OpenIssues: 0, ClosedIssues: 4},
				{Number: 6, State: domain.StateOpen, OpenIssues: 1, ClosedIssues: 4},
				{Number: 7, State: domain.StateOpen, OpenIssues: 0, ClosedIssues: 2},
				{Number: 8, State: domain.StateClosed, OpenIssues: 2, ClosedIssues: 0},
			},
			expectedClosed:   []int{5},
			expectedReopened: []int{8},
			expectedCalls: map[int]string{
				5: domain.StateClosed,
				8: domain.StateOpen,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger := log.New(io.Discard, "", 0)
			source := new(mockSource)
			source.On("FetchMilestones", mock.Anything, 1, tc.opts.ReopenActive).Return(tc.page, nil).Once()
			source.On("FetchMilestones", mock.Anything, mock.Anything, tc.opts.ReopenActive).Return([]*domain.Milestone{}, nil)
			for number, state := range tc.expectedCalls {
				source.On("SetMilestoneState", mock.Anything, number, state).Return(nil).Once()
			}

			processor := NewProcessor(source, tc.opts, logger)
			report, err := processor.Run(context.Background())

			assert.NoError(t, err)
			if tc.expectedClosed != nil {
				assert.Equal(t, tc.expectedClosed, numbers(report.Closed))
			}
			if tc.expectedReopened != nil {
				assert.Equal(t, tc.expectedReopened, numbers(report.Reopened))
			}
			source.AssertNumberOfCalls(t, "SetMilestoneState", len(tc.expectedCalls))
			source.AssertExpectations(t)
		})
	}
}

// TestProcessor_Run_EmptyFirstPage verifies that a run over a repository
// with no open milestones ends after one page with zero mutations.
func TestProcessor_Run_EmptyFirstPage(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	source := new(mockSource)
	source.On("FetchMilestones", mock.Anything, 1, false).Return([]*domain.Milestone{}, nil).Once()

	processor := NewProcessor(source, domain.Options{MinimumIssues: 3}, logger)
	report, err := processor.Run(context.Background())

	assert.NoError(t, err)
	assert.Empty(t, report.Closed)
	assert.Empty(t, report.Reopened)
	assert.Equal(t, 99, report.OperationsLeft)
	source.AssertNumberOfCalls(t, "FetchMilestones", 1)
	source.AssertNumberOfCalls(t, "SetMilestoneState", 0)
	source.AssertExpectations(t)
}

// TestProcessor_Run_BudgetExhaustion verifies that each page costs one
// budget unit and the loop stops once the budget hits zero. With
// reopen-active an empty page does not end the run, so the only stop is
// the budget itself.
func TestProcessor_Run_BudgetExhaustion(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	source := new(mockSource)
	source.On("FetchMilestones", mock.Anything, mock.Anything, true).Return([]*domain.Milestone{}, nil)

	processor := NewProcessor(source, domain.Options{ReopenActive: true}, logger)
	report, err := processor.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 0, report.OperationsLeft)
	source.AssertNumberOfCalls(t, "FetchMilestones", 100)
	source.AssertExpectations(t)
}

// TestProcessor_Run_RelatedMode verifies that related mode derives its
// candidates from the trigger commit and stops right after the first
// page has been triaged.
func TestProcessor_Run_RelatedMode(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	source := new(mockSource)
	related := []*domain.Milestone{{Number: 5, State: domain.StateOpen, OpenIssues: 0, ClosedIssues: 4}}
	source.On("MilestonesForCommit", mock.Anything, "abc123").Return(related, []int{12}, nil)
	source.On("SetMilestoneState", mock.Anything, 5, domain.StateClosed).Return(nil).Once()

	opts := domain.Options{RelatedOnly: true, CommitSHA: "abc123", MinimumIssues: 3}
	processor := NewProcessor(source, opts, logger)
	report, err := processor.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, []int{5}, numbers(report.Closed))
	assert.Equal(t, []int{12}, report.RelatedPullRequests)
	// The second page re-derives the same set and is cut off before any
	// milestone on it is triaged again.
	source.AssertNumberOfCalls(t, "MilestonesForCommit", 2)
	source.AssertNumberOfCalls(t, "SetMilestoneState", 1)
	assert.Equal(t, 98, report.OperationsLeft)
	source.AssertExpectations(t)
}

// TestProcessor_Run_RelatedModeWithoutCommit verifies the documented gap:
// related mode with no trigger commit has no way to derive candidates and
// ends as "no candidates", not as a failure.
func TestProcessor_Run_RelatedModeWithoutCommit(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	source := new(mockSource)

	processor := NewProcessor(source, domain.Options{RelatedOnly: true}, logger)
	report, err := processor.Run(context.Background())

	assert.NoError(t, err)
	assert.Empty(t, report.Closed)
	assert.Empty(t, report.Reopened)
	assert.Equal(t, 99, report.OperationsLeft)
	source.AssertNumberOfCalls(t, "MilestonesForCommit", 0)
	source.AssertExpectations(t)
}

// TestProcessor_Run_Errors verifies that fetch and mutation failures
// propagate and abort the run.
func TestProcessor_Run_Errors(t *testing.T) {
	eligible := []*domain.Milestone{{Number: 5, State: domain.StateOpen, OpenIssues: 0, ClosedIssues: 4}}

	testCases := []struct {
		name  string
		setup func(source *mockSource)
	}{
		{
			name: "fetch failure",
			setup: func(source *mockSource) {
				source.On("FetchMilestones", mock.Anything, 1, false).Return(nil, errors.New("github api error"))
			},
		},
		{
			name: "mutation failure",
			setup: func(source *mockSource) {
				source.On("FetchMilestones", mock.Anything, 1, false).Return(eligible, nil)
				source.On("SetMilestoneState", mock.Anything, 5, domain.StateClosed).Return(errors.New("github api error"))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger := log.New(io.Discard, "", 0)
			source := new(mockSource)
			tc.setup(source)

			processor := NewProcessor(source, domain.Options{MinimumIssues: 3}, logger)
			report, err := processor.Run(context.Background())

			assert.Error(t, err)
			assert.Nil(t, report)
			source.AssertExpectations(t)
		})
	}
}
