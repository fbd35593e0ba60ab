package github

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clintrovert/boardbridge/pkg/types"
)

type fakeIssueClient struct {
	snapshot  *types.IssueSnapshot
	fetchErr  error
	updateErr error
	updates   map[string]string
}

func (f *fakeIssueClient) FetchIssue(context.Context, string, string, int) (*types.IssueSnapshot, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.snapshot, nil
}

func (f *fakeIssueClient) UpdateIssueBody(_ context.Context, nodeID, body string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[nodeID] = body
	return nil
}

type fakeFactory struct {
	client *fakeIssueClient
	err    error
}

func (f *fakeFactory) ForInstallation(context.Context, int64) (IssueClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeReplayer struct {
	snapshots []*types.IssueSnapshot
	ids       []int
	err       error
}

func (f *fakeReplayer) ReplayComments(_ context.Context, snapshot *types.IssueSnapshot, id int) error {
	f.snapshots = append(f.snapshots, snapshot)
	f.ids = append(f.ids, id)
	return f.err
}

func linkContext() types.IssueContext {
	return types.IssueContext{
		Repository:     types.Repository{Owner: "example", Name: "widgets"},
		Issue:          types.Issue{Number: 7, Body: "stale payload body"},
		InstallationID: 99,
	}
}

func testSnapshot() *types.IssueSnapshot {
	return &types.IssueSnapshot{
		NodeID:   "I_1",
		Body:     "fresh body",
		BodyText: "fresh body",
		Comments: []types.SnapshotComment{{AuthorLogin: "alice", BodyText: "hi"}},
	}
}

func TestLinkAndSync(t *testing.T) {
	tests := []struct {
		name       string
		replay     bool
		wantReplay bool
	}{
		{name: "without replay", replay: false},
		{name: "with replay", replay: true, wantReplay: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeIssueClient{snapshot: testSnapshot()}
			replayer := &fakeReplayer{}
			linker := NewLinker(&fakeFactory{client: client}, replayer, zaptest.NewLogger(t))

			require.NoError(t, linker.LinkAndSync(context.Background(), linkContext(), 42, tt.replay))

			assert.Equal(t, map[string]string{"I_1": "fresh body\nAB#42"}, client.updates)
			if tt.wantReplay {
				require.Len(t, replayer.snapshots, 1)
				assert.Same(t, client.snapshot, replayer.snapshots[0])
				assert.Equal(t, []int{42}, replayer.ids)
			} else {
				assert.Empty(t, replayer.snapshots)
			}
		})
	}
}

func TestLinkAndSync_AlreadyLinked(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Body = "fresh body\nAB#41"
	client := &fakeIssueClient{snapshot: snapshot}
	replayer := &fakeReplayer{}
	linker := NewLinker(&fakeFactory{client: client}, replayer, zaptest.NewLogger(t))

	require.NoError(t, linker.LinkAndSync(context.Background(), linkContext(), 42, true))
	assert.Empty(t, client.updates)
	assert.Len(t, replayer.snapshots, 1)
}

func TestLinkAndSync_Failures(t *testing.T) {
	cause := errors.New("boom")

	t.Run("factory", func(t *testing.T) {
		replayer := &fakeReplayer{}
		linker := NewLinker(&fakeFactory{err: cause}, replayer, zaptest.NewLogger(t))
		require.ErrorIs(t, linker.LinkAndSync(context.Background(), linkContext(), 42, true), cause)
		assert.Empty(t, replayer.snapshots)
	})

	t.Run("fetch", func(t *testing.T) {
		replayer := &fakeReplayer{}
		client := &fakeIssueClient{fetchErr: cause}
		linker := NewLinker(&fakeFactory{client: client}, replayer, zaptest.NewLogger(t))
		require.ErrorIs(t, linker.LinkAndSync(context.Background(), linkContext(), 42, true), cause)
		assert.Empty(t, replayer.snapshots)
	})

	t.Run("update skips replay", func(t *testing.T) {
		replayer := &fakeReplayer{}
		client := &fakeIssueClient{snapshot: testSnapshot(), updateErr: cause}
		linker := NewLinker(&fakeFactory{client: client}, replayer, zaptest.NewLogger(t))
		require.ErrorIs(t, linker.LinkAndSync(context.Background(), linkContext(), 42, true), cause)
		assert.Empty(t, replayer.snapshots)
	})

	t.Run("replay", func(t *testing.T) {
		replayer := &fakeReplayer{err: cause}
		client := &fakeIssueClient{snapshot: testSnapshot()}
		linker := NewLinker(&fakeFactory{client: client}, replayer, zaptest.NewLogger(t))
		require.ErrorIs(t, linker.LinkAndSync(context.Background(), linkContext(), 42, true), cause)
		assert.Len(t, client.updates, 1)
	})
}

func TestLinkedWorkItem(t *testing.T) {
	t.Run("reads live body, not payload", func(t *testing.T) {
		snapshot := testSnapshot()
		snapshot.Body = "fresh body\nAB#41"
		ic := linkContext()
		linker := NewLinker(&fakeFactory{client: &fakeIssueClient{snapshot: snapshot}}, &fakeReplayer{}, zaptest.NewLogger(t))

		id, ok, err := linker.LinkedWorkItem(context.Background(), ic)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 41, id)
	})

	t.Run("unlinked", func(t *testing.T) {
		linker := NewLinker(&fakeFactory{client: &fakeIssueClient{snapshot: testSnapshot()}}, &fakeReplayer{}, zaptest.NewLogger(t))

		_, ok, err := linker.LinkedWorkItem(context.Background(), linkContext())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("fetch error", func(t *testing.T) {
		cause := errors.New("boom")
		linker := NewLinker(&fakeFactory{client: &fakeIssueClient{fetchErr: cause}}, &fakeReplayer{}, zaptest.NewLogger(t))

		_, _, err := linker.LinkedWorkItem(context.Background(), linkContext())
		require.ErrorIs(t, err, cause)
	})
}
