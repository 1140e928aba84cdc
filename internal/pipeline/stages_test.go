package pipeline

import (
	"testing"

	"github.com/namishanaseem-clustox/ATS/internal/database"
)

func TestStageRefsFromRowsUsesStableIDs(t *testing.T) {
	rows := []database.PipelineStage{
		{Name: "Offer", Order: 2},
		{Name: "Applied", Order: 0},
		{Name: "Screen", Order: 1},
	}
	rows[0].ID = 30
	rows[1].ID = 10
	rows[2].ID = 20

	refs := StageRefsFromRows(rows)
	if len(refs) != 3 {
		t.Fatalf("len = %d, want 3", len(refs))
	}
	wantIDs := []string{"10", "20", "30"}
	wantNames := []string{"Applied", "Screen", "Offer"}
	for i := range refs {
		if refs[i].ID != wantIDs[i] || refs[i].Name != wantNames[i] || refs[i].Order != i {
			t.Fatalf("refs[%d] = %+v, want id=%s name=%s order=%d", i, refs[i], wantIDs[i], wantNames[i], i)
		}
	}
}

func TestNormalizeStageList(t *testing.T) {
	refs, err := NormalizeStageList([]StageRef{
		{Name: "Screen", Order: 5},
		{ID: "keep", Name: "Applied", Order: 1},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if refs[0].ID != "keep" || refs[0].Order != 0 {
		t.Fatalf("refs[0] = %+v, want existing id kept and order 0", refs[0])
	}
	if refs[1].ID == "" || refs[1].Order != 1 {
		t.Fatalf("refs[1] = %+v, want generated id and order 1", refs[1])
	}

	if _, err := NormalizeStageList(nil); err == nil {
		t.Fatal("expected error for empty list")
	}
	if _, err := NormalizeStageList([]StageRef{{ID: "x"}}); err == nil {
		t.Fatal("expected error for unnamed stage")
	}
}

func TestDefaultConfigRoundTrip(t *testing.T) {
	encoded, err := EncodeConfig(DefaultConfig())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeConfig(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(DefaultStageNames) {
		t.Fatalf("len = %d, want %d", len(decoded), len(DefaultStageNames))
	}
	if decoded[0].ID != "new" || decoded[0].Name != "New Candidates" {
		t.Fatalf("entry stage = %+v", decoded[0])
	}
}
