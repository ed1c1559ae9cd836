package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBuildCountQueryEmptyFilter(t *testing.T) {
	query, args := buildCountQuery(Filter{})
	if query != "SELECT COUNT(*) FROM activity_log WHERE 1=1" {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestBuildCountQueryPlaceholdersStaySequential(t *testing.T) {
	memberID := uuid.New()
	code := "1234"
	from := time.Now().Add(-time.Hour)

	// partner and offer left nil: the numbering must not skip
	query, args := buildCountQuery(Filter{
		MemberID: &memberID,
		CodeUsed: &code,
		Results:  SuccessResults,
		From:     &from,
	})

	for _, want := range []string{"member_id = $1", "code_used = $2", "result = ANY($3)", "created_at >= $4"} {
		if !strings.Contains(query, want) {
			t.Fatalf("query %q missing %q", query, want)
		}
	}
	if strings.Contains(query, "$5") {
		t.Fatalf("query has stray placeholder: %s", query)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
}

func TestBuildCountQueryDistinctPartners(t *testing.T) {
	query, _ := buildCountQuery(Filter{DistinctPartners: true})
	if !strings.HasPrefix(query, "SELECT COUNT(DISTINCT partner_id)") {
		t.Fatalf("expected distinct partner count, got %s", query)
	}
}

func TestBuildCountQueryFullWindow(t *testing.T) {
	partnerID := uuid.New()
	code := "1234"
	from := time.Now().Add(-5 * time.Minute)
	to := time.Now()

	query, args := buildCountQuery(Filter{
		PartnerID: &partnerID,
		CodeUsed:  &code,
		Results:   SuccessResults,
		From:      &from,
		To:        &to,
	})

	if !strings.Contains(query, "created_at >= $4") || !strings.Contains(query, "created_at <= $5") {
		t.Fatalf("window bounds missing: %s", query)
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
}
