package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
	"github.com/bitfantasy/nimo-hr/internal/hr/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestServices(t *testing.T) (*gorm.DB, *repository.Repositories, *AppraisalService, *CommitteeService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	logger := zap.NewNop()

	audit := NewAuditService(repos.AuditLog, logger)
	notification := NewNotificationService(repos.Notification, repos.User, nil, logger)
	appraisalSvc := NewAppraisalService(repos.Appraisal, repos.Workflow, repos.Template, repos.User, repos.Period, audit, notification)
	committeeSvc := NewCommitteeService(repos.Appraisal, repos.Workflow, repos.Template, audit, notification)

	return db, repos, appraisalSvc, committeeSvc
}

// seedReviewFixture 准备一套员工自评+上级评的两步考核环境
func seedReviewFixture(t *testing.T, db *gorm.DB) {
	t.Helper()
	testutil.SeedTestUser(t, db, "sup-1", "王主管", "", entity.RoleSupervisor)
	testutil.SeedTestUser(t, db, "emp-1", "李员工", "sup-1", entity.RoleEmployee)
	testutil.SeedWorkflow(t, db, "wf1", true, entity.RoleEmployee, entity.RoleSupervisor)
	testutil.SeedTemplate(t, db, "tpl1")
}

func validResponsesForTemplate(score float64) []entity.QuestionResponse {
	return []entity.QuestionResponse{
		{QuestionID: "tpl1_q1", Kind: entity.QuestionKindRating, Score: floatPtr(score)},
		{QuestionID: "tpl1_q2", Kind: entity.QuestionKindText, Text: "本季度完成既定目标"},
	}
}

func initiateTestAppraisal(t *testing.T, svc *AppraisalService) *entity.Appraisal {
	t.Helper()
	appraisal, err := svc.Initiate(context.Background(), "hr-1", &InitiateAppraisalRequest{
		EmployeeID: "emp-1",
		Period:     "2026-Q1",
		WorkflowID: "wf1",
		TemplateID: "tpl1",
	})
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}
	return appraisal
}

func TestInitiateResolvesAssignments(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)

	appraisal := initiateTestAppraisal(t, svc)

	if appraisal.Status != entity.AppraisalStatusInProgress {
		t.Errorf("Expected in_progress, got %s", appraisal.Status)
	}
	if appraisal.CurrentStep != 0 {
		t.Errorf("Expected current_step 0, got %d", appraisal.CurrentStep)
	}
	if len(appraisal.StepAssignments) != 2 {
		t.Fatalf("Expected 2 assignments, got %d", len(appraisal.StepAssignments))
	}
	// 员工环节解析到本人，上级环节解析到直属上级
	if appraisal.StepAssignments[0].AssignedUser != "emp-1" {
		t.Errorf("Expected employee step assigned to emp-1, got %s", appraisal.StepAssignments[0].AssignedUser)
	}
	if appraisal.StepAssignments[1].AssignedUser != "sup-1" {
		t.Errorf("Expected supervisor step assigned to sup-1, got %s", appraisal.StepAssignments[1].AssignedUser)
	}
	// 创建时所有环节分配都是pending
	for i := range appraisal.StepAssignments {
		if appraisal.StepAssignments[i].Status != entity.AssignmentStatusPending {
			t.Errorf("Expected assignment %d pending, got %s", i, appraisal.StepAssignments[i].Status)
		}
	}
	if len(appraisal.History) != 1 || appraisal.History[0].Action != entity.HistoryInitiated {
		t.Errorf("Expected single initiated history entry, got %+v", appraisal.History)
	}
}

func TestInitiateRejectsDuplicateActivePeriod(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	initiateTestAppraisal(t, svc)

	_, err := svc.Initiate(context.Background(), "hr-1", &InitiateAppraisalRequest{
		EmployeeID: "emp-1",
		Period:     "2026-Q1",
		WorkflowID: "wf1",
		TemplateID: "tpl1",
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict for duplicate active appraisal, got %v", err)
	}
}

func TestInitiateWithoutSupervisorLeavesUnassigned(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	testutil.SeedTestUser(t, db, "emp-2", "孤儿员工", "", entity.RoleEmployee)
	testutil.SeedWorkflow(t, db, "wf1", true, entity.RoleEmployee, entity.RoleSupervisor)
	testutil.SeedTemplate(t, db, "tpl1")

	appraisal, err := svc.Initiate(context.Background(), "hr-1", &InitiateAppraisalRequest{
		EmployeeID: "emp-2",
		Period:     "2026-Q1",
		WorkflowID: "wf1",
		TemplateID: "tpl1",
	})
	if err != nil {
		t.Fatalf("Initiate without supervisor failed: %v", err)
	}
	// 无直属上级的上级环节留空待指派
	if appraisal.StepAssignments[1].AssignedUser != "" {
		t.Errorf("Expected unassigned supervisor step, got %s", appraisal.StepAssignments[1].AssignedUser)
	}

	// 未指派的环节不接受提交
	svcMustSubmit(t, svc, appraisal.ID, "emp-2", []string{entity.RoleEmployee}, 8)
	_, err = svc.SubmitReview(context.Background(), appraisal.ID, "emp-2", []string{entity.RoleEmployee}, &SubmitReviewRequest{
		Responses: validResponsesForTemplate(5),
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict for unassigned step, got %v", err)
	}
}

func TestInitiateMissingEntitiesNotFound(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	ctx := context.Background()

	cases := []struct {
		name string
		req  InitiateAppraisalRequest
	}{
		{"unknown employee", InitiateAppraisalRequest{EmployeeID: "ghost", Period: "2026-Q1", WorkflowID: "wf1", TemplateID: "tpl1"}},
		{"unknown workflow", InitiateAppraisalRequest{EmployeeID: "emp-1", Period: "2026-Q1", WorkflowID: "nope", TemplateID: "tpl1"}},
		{"unknown template", InitiateAppraisalRequest{EmployeeID: "emp-1", Period: "2026-Q1", WorkflowID: "wf1", TemplateID: "nope"}},
	}
	for _, tc := range cases {
		if _, err := svc.Initiate(ctx, "hr-1", &tc.req); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", tc.name, err)
		}
	}
}

func TestInitiateFallsBackToDefaultWorkflow(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)

	appraisal, err := svc.Initiate(context.Background(), "hr-1", &InitiateAppraisalRequest{
		EmployeeID: "emp-1",
		Period:     "2026-Q2",
		TemplateID: "tpl1",
	})
	if err != nil {
		t.Fatalf("Initiate without workflow failed: %v", err)
	}
	if appraisal.WorkflowID != "wf1" {
		t.Errorf("Expected default workflow wf1, got %s", appraisal.WorkflowID)
	}
}

func TestEmployeeStepAdvancesWithoutGate(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)

	// 员工本人环节提交后直接推进，不进入确认门
	updated, err := svc.SubmitReview(context.Background(), appraisal.ID, "emp-1", []string{entity.RoleEmployee}, &SubmitReviewRequest{
		Responses: validResponsesForTemplate(8),
	})
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	if updated.Status != entity.AppraisalStatusInProgress {
		t.Errorf("Expected in_progress after employee submission, got %s", updated.Status)
	}
	if updated.CurrentStep != 1 {
		t.Errorf("Expected current_step 1, got %d", updated.CurrentStep)
	}
	review := updated.ReviewFor("wf1_step_1")
	if review == nil || review.Status != entity.ReviewStatusCompleted {
		t.Fatalf("Expected completed review for first step, got %+v", review)
	}
	// 自评只有q1计分 → 综合分8
	if review.OverallScore == nil || *review.OverallScore != 8 {
		t.Errorf("Expected review score 8, got %v", review.OverallScore)
	}
	// 提交历史注明环节名称
	submitted := updated.History[len(updated.History)-1]
	if submitted.Action != entity.HistoryReviewSubmitted || submitted.Comment != "提交「步骤1」环节评审" {
		t.Errorf("Expected step-named submission history, got %+v", submitted)
	}
}

func TestSubmitReviewByStepID(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)
	ctx := context.Background()

	// 不属于工作流的步骤
	_, err := svc.SubmitReview(ctx, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, &SubmitReviewRequest{
		StepID:    "wf9_step_9",
		Responses: validResponsesForTemplate(8),
	})
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("Expected ErrBadRequest for unknown step, got %v", err)
	}

	// 合法但非当前环节的步骤
	_, err = svc.SubmitReview(ctx, appraisal.ID, "sup-1", []string{entity.RoleSupervisor}, &SubmitReviewRequest{
		StepID:    "wf1_step_2",
		Responses: validResponsesForTemplate(6),
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict for non-current step, got %v", err)
	}

	// 指明当前环节提交成功
	updated, err := svc.SubmitReview(ctx, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, &SubmitReviewRequest{
		StepID:    "wf1_step_1",
		Responses: validResponsesForTemplate(8),
	})
	if err != nil {
		t.Fatalf("SubmitReview with explicit step failed: %v", err)
	}
	if updated.ReviewFor("wf1_step_1") == nil {
		t.Error("Expected review recorded for explicit step")
	}
}

func TestSupervisorStepEntersEmployeeGate(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)

	svcMustSubmit(t, svc, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, 8)

	updated, err := svc.SubmitReview(context.Background(), appraisal.ID, "sup-1", []string{entity.RoleSupervisor}, &SubmitReviewRequest{
		Responses: validResponsesForTemplate(6),
	})
	if err != nil {
		t.Fatalf("Supervisor SubmitReview failed: %v", err)
	}
	if updated.Status != entity.AppraisalStatusPendingEmployeeReview {
		t.Errorf("Expected pending_employee_review, got %s", updated.Status)
	}
	// 仍停留在当前步骤，等待员工确认
	if updated.CurrentStep != 1 {
		t.Errorf("Expected current_step 1 while pending, got %d", updated.CurrentStep)
	}
}

func TestSubmitReviewForbiddenForNonAssignee(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	testutil.SeedTestUser(t, db, "other-1", "张某", "", entity.RoleEmployee)
	appraisal := initiateTestAppraisal(t, svc)

	_, err := svc.SubmitReview(context.Background(), appraisal.ID, "other-1", []string{entity.RoleEmployee}, &SubmitReviewRequest{
		Responses: validResponsesForTemplate(5),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for non-assignee, got %v", err)
	}
}

func TestAcceptFinalStepCompletesAppraisal(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)

	svcMustSubmit(t, svc, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, 8)
	svcMustSubmit(t, svc, appraisal.ID, "sup-1", []string{entity.RoleSupervisor}, 6)

	completed, err := svc.Accept(context.Background(), appraisal.ID, "emp-1", []string{entity.RoleEmployee})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if completed.Status != entity.AppraisalStatusCompleted {
		t.Errorf("Expected completed, got %s", completed.Status)
	}
	// 最终综合分 = 各环节综合分平均 = (8+6)/2
	if completed.OverallScore == nil || *completed.OverallScore != 7 {
		t.Errorf("Expected overall score 7, got %v", completed.OverallScore)
	}
	last := completed.History[len(completed.History)-1]
	if last.Action != entity.HistoryAcceptedFinal {
		t.Errorf("Expected accepted_final history entry, got %s", last.Action)
	}
}

func TestAcceptByEmployeeOrAdmin(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)

	svcMustSubmit(t, svc, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, 8)
	svcMustSubmit(t, svc, appraisal.ID, "sup-1", []string{entity.RoleSupervisor}, 6)

	if _, err := svc.Accept(context.Background(), appraisal.ID, "sup-1", []string{entity.RoleSupervisor}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden when supervisor accepts, got %v", err)
	}
	// hr_admin可代员工确认
	completed, err := svc.Accept(context.Background(), appraisal.ID, "admin-1", []string{entity.RoleHRAdmin})
	if err != nil {
		t.Fatalf("Expected hr_admin accept to succeed, got %v", err)
	}
	if completed.Status != entity.AppraisalStatusCompleted {
		t.Errorf("Expected completed, got %s", completed.Status)
	}
}

func TestAcceptInProgressIsFinalSignOff(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)

	// 员工自评后处于in_progress，员工直接确认视为最终签收
	svcMustSubmit(t, svc, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, 8)
	signed, err := svc.Accept(context.Background(), appraisal.ID, "emp-1", []string{entity.RoleEmployee})
	if err != nil {
		t.Fatalf("Accept in progress failed: %v", err)
	}
	if signed.Status != entity.AppraisalStatusCompleted {
		t.Errorf("Expected completed after final sign-off, got %s", signed.Status)
	}
	if signed.OverallScore == nil || *signed.OverallScore != 8 {
		t.Errorf("Expected score 8 from the only review, got %v", signed.OverallScore)
	}
	last := signed.History[len(signed.History)-1]
	if last.Action != entity.HistoryAcceptedFinal {
		t.Errorf("Expected accepted_final history entry, got %s", last.Action)
	}

	// 已完结的实例不可再确认
	if _, err := svc.Accept(context.Background(), appraisal.ID, "emp-1", []string{entity.RoleEmployee}); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict for completed instance, got %v", err)
	}
}

func TestRejectReturnsToCurrentStep(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)

	svcMustSubmit(t, svc, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, 8)
	svcMustSubmit(t, svc, appraisal.ID, "sup-1", []string{entity.RoleSupervisor}, 6)

	rejected, err := svc.Reject(context.Background(), appraisal.ID, "emp-1", []string{entity.RoleEmployee}, &RejectRequest{Reason: "评分与事实不符"})
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != entity.AppraisalStatusInProgress {
		t.Errorf("Expected in_progress after reject, got %s", rejected.Status)
	}
	if rejected.RejectionReason != "评分与事实不符" {
		t.Errorf("Expected rejection reason recorded, got %q", rejected.RejectionReason)
	}
	if rejected.CurrentStep != 1 {
		t.Errorf("Expected to stay on step 1, got %d", rejected.CurrentStep)
	}
	if assignment := rejected.AssignmentAt(1); assignment == nil || assignment.Status != entity.AssignmentStatusInProgress {
		t.Errorf("Expected step 1 assignment back to in_progress, got %+v", assignment)
	}

	// 重新提交清除驳回原因并覆盖旧评审
	resubmitted, err := svc.SubmitReview(context.Background(), appraisal.ID, "sup-1", []string{entity.RoleSupervisor}, &SubmitReviewRequest{
		Responses: validResponsesForTemplate(7),
	})
	if err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}
	if resubmitted.RejectionReason != "" {
		t.Errorf("Expected rejection reason cleared on resubmit, got %q", resubmitted.RejectionReason)
	}
	review := resubmitted.ReviewFor("wf1_step_2")
	if review == nil || review.OverallScore == nil || *review.OverallScore != 7 {
		t.Errorf("Expected replaced review with score 7, got %+v", review)
	}
}

func TestReviewerRejectRollsBackStep(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)
	ctx := context.Background()

	// 员工自评后推进到上级环节
	svcMustSubmit(t, svc, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, 8)

	// 无关人员不可驳回
	_, err := svc.Reject(ctx, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, &RejectRequest{Reason: "自驳"})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for non-assignee reject, got %v", err)
	}

	// 上级驳回自评：步骤指针回退到上一环节
	rejected, err := svc.Reject(ctx, appraisal.ID, "sup-1", []string{entity.RoleSupervisor}, &RejectRequest{Reason: "自评缺少事实依据"})
	if err != nil {
		t.Fatalf("Reviewer reject failed: %v", err)
	}
	if rejected.Status != entity.AppraisalStatusInProgress {
		t.Errorf("Expected in_progress, got %s", rejected.Status)
	}
	if rejected.CurrentStep != 0 {
		t.Errorf("Expected rollback to step 0, got %d", rejected.CurrentStep)
	}
	if assignment := rejected.AssignmentAt(0); assignment == nil || assignment.Status != entity.AssignmentStatusInProgress {
		t.Errorf("Expected step 0 assignment back to in_progress, got %+v", assignment)
	}
	if rejected.RejectionReason != "自评缺少事实依据" {
		t.Errorf("Expected rejection reason recorded, got %q", rejected.RejectionReason)
	}
	last := rejected.History[len(rejected.History)-1]
	if last.Action != entity.HistoryRejected {
		t.Errorf("Expected rejected history entry, got %s", last.Action)
	}

	// 已在首环节再驳回：指针不动，仅记录
	again, err := svc.Reject(ctx, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, &RejectRequest{Reason: "重填"})
	if err != nil {
		t.Fatalf("Reject at first step failed: %v", err)
	}
	if again.CurrentStep != 0 {
		t.Errorf("Expected step pointer unchanged at 0, got %d", again.CurrentStep)
	}

	// 员工重新提交后流程继续
	resubmitted := svcMustSubmit(t, svc, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, 7)
	if resubmitted.CurrentStep != 1 || resubmitted.RejectionReason != "" {
		t.Errorf("Expected resubmission to advance and clear reason, got step=%d reason=%q", resubmitted.CurrentStep, resubmitted.RejectionReason)
	}
}

func TestVersionConflictOnConcurrentSave(t *testing.T) {
	db, repos, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)

	ctx := context.Background()
	first, err := repos.Appraisal.FindByID(ctx, appraisal.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	second, err := repos.Appraisal.FindByID(ctx, appraisal.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}

	first.FinalComments = "第一次写入"
	if err := repos.Appraisal.Save(ctx, first); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	second.FinalComments = "落后副本写入"
	if err := repos.Appraisal.Save(ctx, second); err != repository.ErrVersionConflict {
		t.Errorf("Expected ErrVersionConflict, got %v", err)
	}
}

func TestAdminVersionOverlay(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := completeTestAppraisal(t, svc)

	ctx := context.Background()

	// 非elevated角色不可修订
	_, err := svc.UpdateAdminVersion(ctx, appraisal.ID, "sup-1", []string{entity.RoleSupervisor}, &AdminEditRequest{OverallScore: floatPtr(9)})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for supervisor, got %v", err)
	}

	edited, err := svc.UpdateAdminVersion(ctx, appraisal.ID, "hr-1", []string{entity.RoleHR}, &AdminEditRequest{
		OverallScore: floatPtr(9),
	})
	if err != nil {
		t.Fatalf("UpdateAdminVersion failed: %v", err)
	}
	if !edited.IsAdminEdited {
		t.Error("Expected is_admin_edited true")
	}
	// 原始结果不动
	if edited.OverallScore == nil || *edited.OverallScore != 7 {
		t.Errorf("Expected original overall score untouched (7), got %v", edited.OverallScore)
	}
	version := edited.AdminEditedVersion
	if version == nil || version.OverallScore == nil || *version.OverallScore != 9 {
		t.Fatalf("Expected overlay score 9, got %+v", version)
	}
	if len(version.EditHistory) != 1 || len(version.EditHistory[0].Changes) != 1 {
		t.Fatalf("Expected one edit with one field change, got %+v", version.EditHistory)
	}
	if version.EditHistory[0].Changes[0].Field != "overall_score" {
		t.Errorf("Expected overall_score change, got %s", version.EditHistory[0].Changes[0].Field)
	}

	// 相同值再次提交是no-op
	again, err := svc.UpdateAdminVersion(ctx, appraisal.ID, "hr-1", []string{entity.RoleHR}, &AdminEditRequest{
		OverallScore: floatPtr(9),
	})
	if err != nil {
		t.Fatalf("No-op edit failed: %v", err)
	}
	if len(again.AdminEditedVersion.EditHistory) != 1 {
		t.Errorf("Expected no new edit history for unchanged value, got %d", len(again.AdminEditedVersion.EditHistory))
	}
}

func TestAdminVersionHiddenFromEmployee(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := completeTestAppraisal(t, svc)

	ctx := context.Background()
	if _, err := svc.UpdateAdminVersion(ctx, appraisal.ID, "hr-1", []string{entity.RoleHR}, &AdminEditRequest{
		OverallScore: floatPtr(9),
	}); err != nil {
		t.Fatalf("UpdateAdminVersion failed: %v", err)
	}

	asEmployee, err := svc.Get(ctx, appraisal.ID, "emp-1", []string{entity.RoleEmployee})
	if err != nil {
		t.Fatalf("Get as employee failed: %v", err)
	}
	if asEmployee.AdminEditedVersion != nil {
		t.Error("Expected admin edited version hidden from employee")
	}
	if !asEmployee.IsAdminEdited {
		t.Error("Expected is_admin_edited flag still visible")
	}

	asHR, err := svc.Get(ctx, appraisal.ID, "hr-1", []string{entity.RoleHR})
	if err != nil {
		t.Fatalf("Get as hr failed: %v", err)
	}
	if asHR.AdminEditedVersion == nil {
		t.Error("Expected admin edited version visible to hr")
	}
}

func TestUpdateAdminVersionRequiresCompleted(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)

	_, err := svc.UpdateAdminVersion(context.Background(), appraisal.ID, "hr-1", []string{entity.RoleHR}, &AdminEditRequest{
		OverallScore: floatPtr(9),
	})
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("Expected ErrBadRequest for in-progress appraisal, got %v", err)
	}
}

func TestGetAccessControl(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	testutil.SeedTestUser(t, db, "stranger-1", "无关人员", "", entity.RoleEmployee)
	appraisal := initiateTestAppraisal(t, svc)

	ctx := context.Background()
	if _, err := svc.Get(ctx, appraisal.ID, "stranger-1", []string{entity.RoleEmployee}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for unrelated viewer, got %v", err)
	}
	if _, err := svc.Get(ctx, appraisal.ID, "emp-1", []string{entity.RoleEmployee}); err != nil {
		t.Errorf("Expected employee-self access, got %v", err)
	}
	if _, err := svc.Get(ctx, appraisal.ID, "sup-1", []string{entity.RoleSupervisor}); err != nil {
		t.Errorf("Expected assigned reviewer access, got %v", err)
	}
}

func TestBulkDeleteRequiresAdmin(t *testing.T) {
	db, _, svc, _ := newTestServices(t)
	seedReviewFixture(t, db)
	appraisal := initiateTestAppraisal(t, svc)

	ctx := context.Background()
	if _, err := svc.BulkDelete(ctx, "hr-1", []string{entity.RoleHR}, []string{appraisal.ID}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for hr role, got %v", err)
	}

	deleted, err := svc.BulkDelete(ctx, "admin-1", []string{entity.RoleHRAdmin}, []string{appraisal.ID})
	if err != nil {
		t.Fatalf("BulkDelete failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}
	if _, err := svc.Get(ctx, appraisal.ID, "admin-1", []string{entity.RoleHRAdmin}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

// svcMustSubmit 提交评审，失败即终止测试
func svcMustSubmit(t *testing.T, svc *AppraisalService, appraisalID, actorID string, roles []string, score float64) *entity.Appraisal {
	t.Helper()
	appraisal, err := svc.SubmitReview(context.Background(), appraisalID, actorID, roles, &SubmitReviewRequest{
		Responses: validResponsesForTemplate(score),
	})
	if err != nil {
		t.Fatalf("SubmitReview by %s failed: %v", actorID, err)
	}
	return appraisal
}

// completeTestAppraisal 走完两步流程并由员工确认完结
func completeTestAppraisal(t *testing.T, svc *AppraisalService) *entity.Appraisal {
	t.Helper()
	appraisal := initiateTestAppraisal(t, svc)
	svcMustSubmit(t, svc, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, 8)
	svcMustSubmit(t, svc, appraisal.ID, "sup-1", []string{entity.RoleSupervisor}, 6)

	completed, err := svc.Accept(context.Background(), appraisal.ID, "emp-1", []string{entity.RoleEmployee})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	return completed
}
