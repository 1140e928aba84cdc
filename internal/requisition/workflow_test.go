package requisition

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/errcode"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func deptActor(role string, userID uint, deptID uint) Actor {
	return Actor{UserID: userID, Role: role, DepartmentID: &deptID}
}

func createDraft(t *testing.T, svc *Service, actor Actor, title string) *database.JobRequisition {
	t.Helper()
	req, err := svc.Create(context.Background(), actor, CreateInput{
		JobTitle:     title,
		DepartmentID: 1,
		Location:     "Lahore",
	})
	if err != nil {
		t.Fatalf("create requisition: %v", err)
	}
	return req
}

func logActions(t *testing.T, db *gorm.DB, reqID uint) []string {
	t.Helper()
	var logs []database.RequisitionLog
	if err := db.Where("job_requisition_id = ?", reqID).Order("id").Find(&logs).Error; err != nil {
		t.Fatalf("load logs: %v", err)
	}
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

func TestCreateAssignsSequentialCodes(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	hm := deptActor(database.RoleHiringManager, 7, 1)

	first := createDraft(t, svc, hm, "Backend Engineer")
	second := createDraft(t, svc, hm, "Frontend Engineer")

	if first.ReqCode != "REQ-001" || second.ReqCode != "REQ-002" {
		t.Fatalf("req codes = %s, %s; want REQ-001, REQ-002", first.ReqCode, second.ReqCode)
	}
	if first.Status != database.RequisitionDraft {
		t.Fatalf("status = %s, want Draft", first.Status)
	}
	if first.Currency != "USD" {
		t.Fatalf("currency = %s, want USD default", first.Currency)
	}
	if got := logActions(t, db, first.ID); len(got) != 1 || got[0] != "Created Requisition" {
		t.Fatalf("log actions = %v", got)
	}
}

func TestCreateRetriesOnCodeCollision(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	hm := deptActor(database.RoleHiringManager, 7, 1)

	// 预占 REQ-002：当前计数为 1，首个尝试取 REQ-002 必然冲突，
	// 重试应顺延到 REQ-003。
	if err := db.Create(&database.JobRequisition{
		ReqCode:         "REQ-002",
		JobTitle:        "Squatter",
		DepartmentID:    1,
		Status:          database.RequisitionDraft,
		HiringManagerID: 1,
	}).Error; err != nil {
		t.Fatalf("seed requisition: %v", err)
	}

	req := createDraft(t, svc, hm, "Backend Engineer")
	if req.ReqCode != "REQ-003" {
		t.Fatalf("req code = %s, want REQ-003 after collision retry", req.ReqCode)
	}
}

func TestApproveOnDraftIsInvalidState(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	hm := deptActor(database.RoleHiringManager, 7, 1)
	hr := deptActor(database.RoleHR, 2, 1)

	req := createDraft(t, svc, hm, "Backend Engineer")
	if _, err := svc.Approve(context.Background(), hr, req.ID); !errcode.Is(err, errcode.KindInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestHiringManagerCannotApprove(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	hm := deptActor(database.RoleHiringManager, 7, 1)

	req := createDraft(t, svc, hm, "Backend Engineer")
	if err := svc.Submit(ctx, hm, req.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Approve(ctx, hm, req.ID); !errcode.Is(err, errcode.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestFullApprovalFlowAndConvert(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	hm := deptActor(database.RoleHiringManager, 7, 1)
	hr := deptActor(database.RoleHR, 2, 1)
	owner := deptActor(database.RoleOwner, 1, 1)

	min, max := 90000.0, 120000.0
	req, err := svc.Create(ctx, hm, CreateInput{
		JobTitle:       "Backend Engineer",
		DepartmentID:   3,
		Location:       "Remote",
		EmploymentType: "Full-time",
		MinSalary:      &min,
		MaxSalary:      &max,
		Justification:  "Team is at capacity",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Submit(ctx, hm, req.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	status, err := svc.Approve(ctx, hr, req.ID)
	if err != nil {
		t.Fatalf("hr approve: %v", err)
	}
	if status != database.RequisitionPendingOwner {
		t.Fatalf("status after HR approve = %s, want Pending_Owner", status)
	}
	status, err = svc.Approve(ctx, owner, req.ID)
	if err != nil {
		t.Fatalf("owner approve: %v", err)
	}
	if status != database.RequisitionOpen {
		t.Fatalf("status after Owner approve = %s, want Open", status)
	}

	jobID, err := svc.Convert(ctx, hr, req.ID)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	var job database.Job
	if err := db.First(&job, jobID).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Title != "Backend Engineer" || job.DepartmentID != 3 || job.Location != "Remote" {
		t.Fatalf("job fields not copied: %+v", job)
	}
	if job.Status != database.JobDraft {
		t.Fatalf("job status = %s, want Draft", job.Status)
	}
	if job.JobCode != "JOB-"+req.ReqCode {
		t.Fatalf("job code = %s, want JOB-%s", job.JobCode, req.ReqCode)
	}
	if job.HiringManagerID == nil || *job.HiringManagerID != hm.UserID {
		t.Fatalf("job hiring manager = %v, want %d", job.HiringManagerID, hm.UserID)
	}
	if len(job.PipelineConfig) == 0 {
		t.Fatal("job pipeline config is empty")
	}

	var reloaded database.JobRequisition
	if err := db.First(&reloaded, req.ID).Error; err != nil {
		t.Fatalf("reload requisition: %v", err)
	}
	if reloaded.Status != database.RequisitionFilled {
		t.Fatalf("requisition status = %s, want Filled", reloaded.Status)
	}

	want := []string{
		"Created Requisition",
		"Submitted to HR",
		"Approved by HR",
		"Approved by Owner",
		"Converted to Job Posting",
	}
	got := logActions(t, db, req.ID)
	if len(got) != len(want) {
		t.Fatalf("log actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("log actions = %v, want %v", got, want)
		}
	}

	// Filled 之后不可再转换。
	if _, err := svc.Convert(ctx, hr, req.ID); !errcode.Is(err, errcode.KindInvalidState) {
		t.Fatalf("double convert: expected invalid state, got %v", err)
	}
}

func TestRejectReturnsToDraftAndResubmitClearsReason(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	hm := deptActor(database.RoleHiringManager, 7, 1)
	hr := deptActor(database.RoleHR, 2, 1)

	req := createDraft(t, svc, hm, "Backend Engineer")
	if err := svc.Submit(ctx, hm, req.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Approve(ctx, hr, req.ID); err != nil {
		t.Fatalf("hr approve: %v", err)
	}
	// Pending_Owner 状态下 HR 仍可驳回。
	if err := svc.Reject(ctx, hr, req.ID, "Budget frozen"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	var reloaded database.JobRequisition
	if err := db.First(&reloaded, req.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != database.RequisitionDraft {
		t.Fatalf("status = %s, want Draft", reloaded.Status)
	}
	if reloaded.RejectionReason != "Budget frozen" {
		t.Fatalf("rejection reason = %q, want %q", reloaded.RejectionReason, "Budget frozen")
	}

	actions := logActions(t, db, req.ID)
	last := actions[len(actions)-1]
	if last != "Returned to Draft / Rejected - Reason: Budget frozen" {
		t.Fatalf("reject log = %q, want table text with reason appended", last)
	}

	// 重新送审后原因清空，但日志保留。
	if err := svc.Submit(ctx, hm, req.ID); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if err := db.First(&reloaded, req.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != database.RequisitionPendingHR {
		t.Fatalf("status = %s, want Pending_HR", reloaded.Status)
	}
	if reloaded.RejectionReason != "" {
		t.Fatalf("rejection reason = %q, want cleared", reloaded.RejectionReason)
	}
	if got := logActions(t, db, req.ID); !strings.Contains(strings.Join(got, "|"), "Budget frozen") {
		t.Fatalf("reject reason dropped from audit log: %v", got)
	}
}

func TestUpdateRulesAfterSubmission(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	hm := deptActor(database.RoleHiringManager, 7, 1)
	hr := deptActor(database.RoleHR, 2, 1)

	req := createDraft(t, svc, hm, "Backend Engineer")

	title := "Senior Backend Engineer"
	if _, err := svc.Update(ctx, hm, req.ID, UpdateInput{JobTitle: &title}); err != nil {
		t.Fatalf("draft update by creator: %v", err)
	}

	if err := svc.Submit(ctx, hm, req.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := svc.Update(ctx, hm, req.ID, UpdateInput{JobTitle: &title}); !errcode.Is(err, errcode.KindInvalidState) {
		t.Fatalf("post-submit update by HM: expected invalid state, got %v", err)
	}

	budget := "ENG-2026"
	updated, err := svc.Update(ctx, hr, req.ID, UpdateInput{BudgetCode: &budget})
	if err != nil {
		t.Fatalf("post-submit update by HR: %v", err)
	}
	if updated.BudgetCode != budget {
		t.Fatalf("budget code = %q, want %q", updated.BudgetCode, budget)
	}
}

func TestHiringManagerVisibility(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	hmD1 := deptActor(database.RoleHiringManager, 7, 1)
	hmD2 := deptActor(database.RoleHiringManager, 8, 2)
	hr := deptActor(database.RoleHR, 2, 1)

	mine, err := svc.Create(ctx, hmD1, CreateInput{JobTitle: "Dept 1 Role", DepartmentID: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := svc.Create(ctx, hmD2, CreateInput{JobTitle: "Dept 2 Role", DepartmentID: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := svc.List(ctx, hmD1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Fatalf("hm list = %d items, want only own department requisition", len(list))
	}

	list, err = svc.List(ctx, hr)
	if err != nil {
		t.Fatalf("hr list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("hr list = %d items, want 2", len(list))
	}

	if _, err := svc.Get(ctx, hmD1, other.ID); !errcode.Is(err, errcode.KindForbidden) {
		t.Fatalf("cross-department get: expected forbidden, got %v", err)
	}
	got, err := svc.Get(ctx, hmD1, mine.ID)
	if err != nil {
		t.Fatalf("own get: %v", err)
	}
	if len(got.Logs) == 0 {
		t.Fatal("expected audit logs preloaded")
	}
}

func TestCreateForbiddenForUnknownRole(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	_, err := svc.Create(context.Background(), Actor{UserID: 1, Role: "Candidate"}, CreateInput{JobTitle: "X", DepartmentID: 1})
	if !errcode.Is(err, errcode.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
