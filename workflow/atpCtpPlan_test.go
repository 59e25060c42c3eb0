package workflow

import (
	"testing"

	"github.com/mmdatafocus/orders_backend/iplanclient"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func planItem(qty string, d string, plant string) iplanclient.PlanItem {
	return iplanclient.PlanItem{
		AtpCtp:   models.PlanTypeATP,
		Quantity: dec(qty),
		Date:     iplanclient.NewDate(*date(d)),
		Plant:    plant,
	}
}

func plannedLine(qty string) *models.OrderLine {
	line := &models.OrderLine{
		ID:           5,
		OrderId:      2,
		ItemNo:       "10",
		Order:        &models.Order{ID: 2, SoNo: "1100001", Type: models.OrderTypeDomestic},
		Plant:        "P100",
		Quantity:     dec(qty),
		RequestDate:  date("2026-04-01"),
		AtpCtpStatus: models.AtpCtpStatusConfirming,
	}
	line.Planning = models.NewOrderLinePlanning(line.ID)
	return line
}

func TestApplyConfirmedPlanFullAccept(t *testing.T) {
	line := plannedLine("100")
	created := applyConfirmedPlan(line, []SelectedPlanItem{
		{Action: models.PlanActionAccept, PlanItem: planItem("100", "2026-04-01", "P200")},
	}, []byte(`{}`))

	if len(created) != 0 {
		t.Fatalf("created %d lines", len(created))
	}
	if line.AtpCtpStatus != models.AtpCtpStatusConfirmed {
		t.Fatalf("status = %s", line.AtpCtpStatus)
	}
	if !line.AssignedQuantity.Equal(dec("100")) || !line.NonConfirmQuantity.IsZero() {
		t.Fatalf("assigned=%s non=%s", line.AssignedQuantity, line.NonConfirmQuantity)
	}
	if line.Plant != "P200" || line.ItemStatusEn != models.ItemStatusFullCommitted.En {
		t.Fatalf("plant=%s status=%s", line.Plant, line.ItemStatusEn)
	}
	if line.AttentionType.Len() != 0 {
		t.Fatalf("unexpected flags %q", line.AttentionType.String())
	}
}

func TestApplyConfirmedPlanShortAndLate(t *testing.T) {
	line := plannedLine("100")
	line.AttentionType = models.ParseAttentionSet("R5")
	applyConfirmedPlan(line, []SelectedPlanItem{
		{Action: models.PlanActionAccept, PlanItem: planItem("40", "2026-04-03", "")},
		{Action: models.PlanActionAccept, PlanItem: planItem("20", "2026-04-05", "")},
	}, nil)

	if !line.AssignedQuantity.Equal(dec("60")) || !line.NonConfirmQuantity.Equal(dec("40")) {
		t.Fatalf("assigned=%s non=%s", line.AssignedQuantity, line.NonConfirmQuantity)
	}
	if line.ConfirmedDate == nil || !line.ConfirmedDate.Equal(*date("2026-04-05")) {
		t.Fatalf("confirmed date = %v, want the latest item date", line.ConfirmedDate)
	}
	if line.Plant != "P100" {
		t.Fatalf("blank item plant replaced line plant: %s", line.Plant)
	}
	if got := line.AttentionType.String(); got != "R1, R2" {
		t.Fatalf("attention = %q", got)
	}
	if line.ItemStatusEn != models.ItemStatusPartialCommitted.En {
		t.Fatalf("item status = %s", line.ItemStatusEn)
	}
}

func TestApplyConfirmedPlanSplit(t *testing.T) {
	line := plannedLine("100")
	created := applyConfirmedPlan(line, []SelectedPlanItem{
		{Action: models.PlanActionSplit, PlanItem: planItem("60", "2026-04-01", "")},
		{Action: models.PlanActionSplit, PlanItem: planItem("40", "2026-04-10", "P300")},
	}, nil)

	if len(created) != 1 {
		t.Fatalf("created %d lines, want 1", len(created))
	}
	if !line.Quantity.Equal(dec("60")) || !line.AssignedQuantity.Equal(dec("60")) {
		t.Fatalf("source qty=%s assigned=%s", line.Quantity, line.AssignedQuantity)
	}
	if line.AttentionType.Len() != 0 {
		t.Fatalf("source flags %q", line.AttentionType.String())
	}

	nl := created[0]
	if !nl.Quantity.Equal(dec("40")) || nl.Plant != "P300" || nl.OrderId != 2 {
		t.Fatalf("split line %+v", nl)
	}
	if nl.OriginalOrderLineId == nil || *nl.OriginalOrderLineId != 5 {
		t.Fatalf("split line not linked to its source")
	}
	if nl.AtpCtpStatus != models.AtpCtpStatusConfirmed || nl.Planning == nil || nl.Planning.ID != 0 {
		t.Fatalf("split line planning state %+v", nl.Planning)
	}
	if !nl.AttentionType.Has(models.AttentionConfirmDateDiff) {
		t.Fatalf("split line on a later date should carry R1, got %q", nl.AttentionType.String())
	}
}

func TestApplyConfirmedPlanAllRejected(t *testing.T) {
	line := plannedLine("100")
	applyConfirmedPlan(line, []SelectedPlanItem{
		{Action: models.PlanActionReject, PlanItem: planItem("100", "2026-04-01", "")},
	}, nil)

	if line.AtpCtpStatus != models.AtpCtpStatusUnplanned {
		t.Fatalf("status = %s", line.AtpCtpStatus)
	}
	if !line.AttentionType.Has(models.AttentionPlanRejected) || !line.Planning.ReAtpRequired {
		t.Fatalf("rejection not recorded")
	}
	if !line.NonConfirmQuantity.Equal(dec("100")) || line.ItemStatusEn != models.ItemStatusNotCommitted.En {
		t.Fatalf("non=%s status=%s", line.NonConfirmQuantity, line.ItemStatusEn)
	}
}

func TestConflictingETD(t *testing.T) {
	twoDates := []iplanclient.PlanItem{planItem("50", "2026-04-01", ""), planItem("50", "2026-04-02", "")}
	sameDate := []iplanclient.PlanItem{planItem("50", "2026-04-01", "P1"), planItem("50", "2026-04-01", "P2")}

	line := plannedLine("100")
	line.Planning.PartialDelivery = false
	if !conflictingETD(line, twoDates) {
		t.Fatalf("two dates without partial delivery must conflict")
	}
	if conflictingETD(line, sameDate) {
		t.Fatalf("one date cannot conflict")
	}
	line.Planning.PartialDelivery = true
	if conflictingETD(line, twoDates) {
		t.Fatalf("partial delivery allows several dates")
	}
}

func TestApplyProposalTogglesConflictFlag(t *testing.T) {
	line := plannedLine("100")
	line.Planning.PartialDelivery = false
	applyProposal(line, []iplanclient.PlanItem{planItem("50", "2026-04-01", ""), planItem("50", "2026-04-09", "")}, []byte(`{"a":1}`))
	if line.AtpCtpStatus != models.AtpCtpStatusProposed || !line.AttentionType.Has(models.AttentionConflictingETD) {
		t.Fatalf("status=%s flags=%q", line.AtpCtpStatus, line.AttentionType.String())
	}
	applyProposal(line, []iplanclient.PlanItem{planItem("100", "2026-04-01", "")}, nil)
	if line.AttentionType.Has(models.AttentionConflictingETD) {
		t.Fatalf("R4 kept after a single-date proposal")
	}
}

func TestBuildPlanRequest(t *testing.T) {
	line := plannedLine("12.5")
	line.ItemNo = "000010"
	line.MaterialCode = "MAT-1"
	req := buildPlanRequest([]*models.OrderLine{line})
	if len(req.Lines) != 1 {
		t.Fatalf("lines = %d", len(req.Lines))
	}
	rl := req.Lines[0]
	if rl.OrderNo != "1100001" || rl.ItemNo != "10" || rl.Material != "MAT-1" {
		t.Fatalf("request line %+v", rl)
	}
	if rl.RequestDate.Format("02/01/2006") != "01/04/2026" || !rl.PartialDelivery {
		t.Fatalf("request line %+v", rl)
	}
}

func TestItemStatusFor(t *testing.T) {
	cases := []struct {
		requested, assigned string
		want                models.ItemStatus
	}{
		{"10", "10", models.ItemStatusFullCommitted},
		{"10", "12", models.ItemStatusFullCommitted},
		{"10", "4", models.ItemStatusPartialCommitted},
		{"10", "0", models.ItemStatusNotCommitted},
	}
	for _, tc := range cases {
		if got := itemStatusFor(dec(tc.requested), dec(tc.assigned)); got != tc.want {
			t.Fatalf("itemStatusFor(%s, %s) = %v", tc.requested, tc.assigned, got)
		}
	}
}

func TestRestoreAfterFailedRequest(t *testing.T) {
	cases := []struct {
		prior models.AtpCtpStatus
		want  models.AtpCtpStatus
	}{
		{models.AtpCtpStatusConfirmed, models.AtpCtpStatusConfirmed},
		{models.AtpCtpStatusProposed, models.AtpCtpStatusProposed},
		{models.AtpCtpStatusConfirmFailed, models.AtpCtpStatusConfirmFailed},
		{models.AtpCtpStatusUnplanned, models.AtpCtpStatusUnplanned},
		{models.AtpCtpStatusRequested, models.AtpCtpStatusUnplanned},
		{models.AtpCtpStatusConfirming, models.AtpCtpStatusUnplanned},
		{"", models.AtpCtpStatusUnplanned},
	}
	for _, tc := range cases {
		line := plannedLine("10")
		line.AtpCtpStatus = models.AtpCtpStatusRequested
		restoreAfterFailedRequest(line, tc.prior)
		if line.AtpCtpStatus != tc.want {
			t.Fatalf("prior %q: status = %s, want %s", tc.prior, line.AtpCtpStatus, tc.want)
		}
		if !line.AttentionType.Has(models.AttentionPlanRejected) || !line.Planning.ReAtpRequired {
			t.Fatalf("prior %q: failure not recorded", tc.prior)
		}
	}
}

func TestFailedRequestKeepsConfirmedFacts(t *testing.T) {
	line := plannedLine("100")
	applyConfirmedPlan(line, []SelectedPlanItem{
		{Action: models.PlanActionAccept, PlanItem: planItem("100", "2026-04-01", "")},
	}, nil)
	prior := line.AtpCtpStatus
	if err := line.BeginPlanRequest(*date("2026-04-02"), 0); err != nil {
		t.Fatalf("BeginPlanRequest: %v", err)
	}
	restoreAfterFailedRequest(line, prior)
	if line.AtpCtpStatus != models.AtpCtpStatusConfirmed {
		t.Fatalf("status = %s, want Confirmed", line.AtpCtpStatus)
	}
	if !line.AssignedQuantity.Equal(dec("100")) || line.ItemStatusEn != models.ItemStatusFullCommitted.En {
		t.Fatalf("confirmed facts changed: assigned=%s status=%s", line.AssignedQuantity, line.ItemStatusEn)
	}
}
