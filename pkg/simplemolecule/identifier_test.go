package simplemolecule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      simplemolecule.Identifier
		wantError error
	}{
		{
			name: "session and node",
			raw:  "workflow_fl40l5_node_23",
			want: simplemolecule.Identifier{SessionID: "workflow_fl40l5", NodeID: "23"},
		},
		{
			name: "splits on first separator",
			raw:  "a_node_b_node_c",
			want: simplemolecule.Identifier{SessionID: "a", NodeID: "b_node_c"},
		},
		{
			name:      "bare node",
			raw:       "23",
			want:      simplemolecule.Identifier{NodeID: "23"},
			wantError: simplemolecule.ErrMissingSession,
		},
		{
			name:      "empty session part",
			raw:       "_node_5",
			want:      simplemolecule.Identifier{NodeID: "5"},
			wantError: simplemolecule.ErrMissingSession,
		},
		{
			name:      "empty",
			raw:       "  ",
			wantError: simplemolecule.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := simplemolecule.ParseIdentifier(tt.raw)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewIdentifier(t *testing.T) {
	id, err := simplemolecule.NewIdentifier("wf", "3")
	require.NoError(t, err)
	assert.Equal(t, "wf_node_3", id.String())
	assert.True(t, id.HasSession())

	parsed, err := simplemolecule.ParseIdentifier(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = simplemolecule.NewIdentifier("", "3")
	assert.ErrorIs(t, err, simplemolecule.ErrValidation)
	_, err = simplemolecule.NewIdentifier("wf", " ")
	assert.ErrorIs(t, err, simplemolecule.ErrValidation)
}

func TestDeriveIdentifier(t *testing.T) {
	now := time.Now()
	sessions := []simplemolecule.SessionObservation{
		{SessionID: "old", LastSeen: now.Add(-time.Hour)},
		{SessionID: "recent", LastSeen: now},
		{SessionID: "", LastSeen: now.Add(time.Hour)},
	}

	t.Run("full identifier is kept", func(t *testing.T) {
		assert.Equal(t, "old_node_5", simplemolecule.DeriveIdentifier("old_node_5", sessions))
	})

	t.Run("newest session wins", func(t *testing.T) {
		assert.Equal(t, "recent_node_5", simplemolecule.DeriveIdentifier("5", sessions))
	})

	t.Run("default session without observations", func(t *testing.T) {
		assert.Equal(t, "default_node_5", simplemolecule.DeriveIdentifier("5", nil))
	})
}

func TestDisambiguatedName(t *testing.T) {
	assert.Equal(t, "ligand_node7.pdb", simplemolecule.DisambiguatedName("ligand.pdb", "wf_node_7"))
	assert.Equal(t, "ligand_nodedef.pdb", simplemolecule.DisambiguatedName("ligand.pdb", "abcdef"))
	assert.Equal(t, "ligand_nodeab.pdb", simplemolecule.DisambiguatedName("ligand.pdb", "ab"))
	assert.Equal(t, "ligand_node2", simplemolecule.DisambiguatedName("ligand", "wf_node_2"))
	assert.Equal(t, "ligand.pdb", simplemolecule.DisambiguatedName("ligand.pdb", ""))

	assert.Equal(t, []string{"ligand.pdb", "ligand_node7.pdb"}, simplemolecule.CandidateNames("ligand.pdb", "wf_node_7"))
	assert.Equal(t, []string{"ligand.pdb"}, simplemolecule.CandidateNames("ligand.pdb", ""))
}

func TestSourceKey(t *testing.T) {
	key, err := simplemolecule.SourceKey("molecules", "a.pdb")
	require.NoError(t, err)
	assert.Equal(t, "molecules/a.pdb", key)

	key, err = simplemolecule.SourceKey("", "a.pdb")
	require.NoError(t, err)
	assert.Equal(t, "a.pdb", key)

	for _, bad := range [][2]string{
		{"../x", "a.pdb"},
		{"molecules", "../a.pdb"},
		{"molecules", "sub/a.pdb"},
		{"/etc", "passwd"},
		{"molecules/../..", "a.pdb"},
		{"molecules", ".."},
		{"molecules", ""},
	} {
		_, err := simplemolecule.SourceKey(bad[0], bad[1])
		assert.ErrorIs(t, err, simplemolecule.ErrValidation, "folder=%q name=%q", bad[0], bad[1])
	}
}
