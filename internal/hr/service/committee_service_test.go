package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/testutil"
	"gorm.io/gorm"
)

var committeeRoles = []string{entity.RoleCommittee}

// seedCommitteeFixture 员工自评+委员会评审的两步流程，委员c1手工指派为委员会环节负责人
// 员工自评后推进到委员会环节，此时委员会环节尚无评审记录
func seedCommitteeFixture(t *testing.T, db *gorm.DB, appraisalSvc *AppraisalService) *entity.Appraisal {
	t.Helper()
	testutil.SeedTestUser(t, db, "emp-1", "李员工", "", entity.RoleEmployee)
	testutil.SeedTestUser(t, db, "c1", "委员甲", "", entity.RoleCommittee)
	testutil.SeedTestUser(t, db, "c2", "委员乙", "", entity.RoleCommittee)
	testutil.SeedWorkflow(t, db, "wf2", true, entity.RoleEmployee, entity.RoleCommittee)
	testutil.SeedTemplate(t, db, "tpl1")

	appraisal, err := appraisalSvc.Initiate(context.Background(), "hr-1", &InitiateAppraisalRequest{
		EmployeeID:  "emp-1",
		Period:      "2026-Q1",
		WorkflowID:  "wf2",
		TemplateID:  "tpl1",
		Assignments: map[string]string{"wf2_step_2": "c1"},
	})
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}

	// 员工自评后推进到委员会环节
	return svcMustSubmit(t, appraisalSvc, appraisal.ID, "emp-1", []string{entity.RoleEmployee}, 8)
}

// seedBaseCommitteeReview 由环节负责人c1首次提交评审（q1打5分），委员会在其上协作
func seedBaseCommitteeReview(t *testing.T, appraisalSvc *AppraisalService, appraisalID string) *entity.Appraisal {
	t.Helper()
	return svcMustSubmit(t, appraisalSvc, appraisalID, "c1", committeeRoles, 5)
}

func TestLockConflictAndRenewal(t *testing.T) {
	db, _, appraisalSvc, committeeSvc := newTestServices(t)
	appraisal := seedCommitteeFixture(t, db, appraisalSvc)
	ctx := context.Background()

	if err := committeeSvc.LockQuestion(ctx, appraisal.ID, "tpl1_q1", "c1", committeeRoles); err != nil {
		t.Fatalf("Lock by c1 failed: %v", err)
	}

	// 他人持有的新鲜锁不可抢占
	err := committeeSvc.LockQuestion(ctx, appraisal.ID, "tpl1_q1", "c2", committeeRoles)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict for foreign lock, got %v", err)
	}

	// 自己的锁可续期
	if err := committeeSvc.LockQuestion(ctx, appraisal.ID, "tpl1_q1", "c1", committeeRoles); err != nil {
		t.Errorf("Expected renewal by holder, got %v", err)
	}

	// 非持有者释放是静默no-op
	if err := committeeSvc.UnlockQuestion(ctx, appraisal.ID, "tpl1_q1", "c2"); err != nil {
		t.Errorf("Expected silent unlock by non-holder, got %v", err)
	}

	if err := committeeSvc.UnlockQuestion(ctx, appraisal.ID, "tpl1_q1", "c1"); err != nil {
		t.Fatalf("Unlock by holder failed: %v", err)
	}
	if err := committeeSvc.LockQuestion(ctx, appraisal.ID, "tpl1_q1", "c2", committeeRoles); err != nil {
		t.Errorf("Expected lock after release, got %v", err)
	}
}

func TestLockExpiryTakeover(t *testing.T) {
	db, repos, appraisalSvc, committeeSvc := newTestServices(t)
	appraisal := seedCommitteeFixture(t, db, appraisalSvc)
	ctx := context.Background()

	if err := committeeSvc.LockQuestion(ctx, appraisal.ID, "tpl1_q1", "c1", committeeRoles); err != nil {
		t.Fatalf("Lock by c1 failed: %v", err)
	}

	// 把锁时间拨到TTL之外
	stale, err := repos.Appraisal.FindByID(ctx, appraisal.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	stale.LockedQuestions[0].LockedAt = time.Now().Add(-QuestionLockTTL - time.Minute)
	if err := repos.Appraisal.Save(ctx, stale); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 过期锁可被其他成员接管
	if err := committeeSvc.LockQuestion(ctx, appraisal.ID, "tpl1_q1", "c2", committeeRoles); err != nil {
		t.Errorf("Expected takeover of expired lock, got %v", err)
	}

	reloaded, err := repos.Appraisal.FindByID(ctx, appraisal.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	lock := reloaded.LockFor("tpl1_q1")
	if lock == nil || lock.LockedBy != "c2" {
		t.Errorf("Expected lock held by c2, got %+v", lock)
	}
}

func TestLockRoleGateAndUnlockLeniency(t *testing.T) {
	db, repos, appraisalSvc, committeeSvc := newTestServices(t)
	appraisal := seedCommitteeFixture(t, db, appraisalSvc)
	ctx := context.Background()

	// 非委员角色不可加锁
	err := committeeSvc.LockQuestion(ctx, appraisal.ID, "tpl1_q1", "emp-1", []string{entity.RoleEmployee})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for non-committee lock, got %v", err)
	}

	if err := committeeSvc.LockQuestion(ctx, appraisal.ID, "tpl1_q1", "c1", committeeRoles); err != nil {
		t.Fatalf("Lock by c1 failed: %v", err)
	}

	// 释放他人的锁、不存在的锁都静默成功，且不改变持锁状态
	if err := committeeSvc.UnlockQuestion(ctx, appraisal.ID, "tpl1_q1", "emp-1"); err != nil {
		t.Errorf("Expected silent unlock for foreign lock, got %v", err)
	}
	if err := committeeSvc.UnlockQuestion(ctx, appraisal.ID, "tpl1_q9", "c2"); err != nil {
		t.Errorf("Expected silent unlock for absent lock, got %v", err)
	}

	reloaded, err := repos.Appraisal.FindByID(ctx, appraisal.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if lock := reloaded.LockFor("tpl1_q1"); lock == nil || lock.LockedBy != "c1" {
		t.Errorf("Expected lock still held by c1, got %+v", lock)
	}
}

func TestSaveCommitteeReviewRequiresExistingReview(t *testing.T) {
	db, _, appraisalSvc, committeeSvc := newTestServices(t)
	appraisal := seedCommitteeFixture(t, db, appraisalSvc)
	ctx := context.Background()

	// 环节负责人尚未首次提交，协作评分无记录可依附
	_, err := committeeSvc.SaveCommitteeReview(ctx, appraisal.ID, "c2", committeeRoles, &SaveCommitteeReviewRequest{
		Responses: []entity.QuestionResponse{
			{QuestionID: "tpl1_q1", Kind: entity.QuestionKindRating, Score: floatPtr(7)},
		},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound before first submission, got %v", err)
	}

	// 不属于工作流的step_id
	seedBaseCommitteeReview(t, appraisalSvc, appraisal.ID)
	_, err = committeeSvc.SaveCommitteeReview(ctx, appraisal.ID, "c2", committeeRoles, &SaveCommitteeReviewRequest{
		StepID: "wf9_step_9",
		Responses: []entity.QuestionResponse{
			{QuestionID: "tpl1_q1", Kind: entity.QuestionKindRating, Score: floatPtr(7)},
		},
	})
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("Expected ErrBadRequest for unknown step, got %v", err)
	}
}

func TestSaveCommitteeReviewMergesAndLogsScoreChanges(t *testing.T) {
	db, _, appraisalSvc, committeeSvc := newTestServices(t)
	appraisal := seedCommitteeFixture(t, db, appraisalSvc)
	seedBaseCommitteeReview(t, appraisalSvc, appraisal.ID)
	ctx := context.Background()

	// c1改自己首次提交的5分为7分，记录5→7并迁移为委员会形态
	updated, err := committeeSvc.SaveCommitteeReview(ctx, appraisal.ID, "c1", committeeRoles, &SaveCommitteeReviewRequest{
		Responses: []entity.QuestionResponse{
			{QuestionID: "tpl1_q1", Kind: entity.QuestionKindRating, Score: floatPtr(7)},
		},
	})
	if err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	review := updated.ReviewFor("wf2_step_2")
	if review == nil || !review.IsCommittee || review.Status != entity.ReviewStatusInProgress {
		t.Fatalf("Expected in-progress committee review, got %+v", review)
	}
	if len(review.CommitteeMembers) != 1 || review.CommitteeMembers[0] != "c1" {
		t.Errorf("Expected members [c1], got %v", review.CommitteeMembers)
	}
	if len(review.ChangeLog) != 1 || review.ChangeLog[0].OldValue == nil || *review.ChangeLog[0].OldValue != 5 || *review.ChangeLog[0].NewValue != 7 {
		t.Fatalf("Expected change log 5→7, got %+v", review.ChangeLog)
	}

	// 第二名委员改分，记录7→9
	comments := "委员会意见"
	updated, err = committeeSvc.SaveCommitteeReview(ctx, appraisal.ID, "c2", committeeRoles, &SaveCommitteeReviewRequest{
		Responses: []entity.QuestionResponse{
			{QuestionID: "tpl1_q1", Kind: entity.QuestionKindRating, Score: floatPtr(9)},
		},
		Comments: &comments,
	})
	if err != nil {
		t.Fatalf("Second save failed: %v", err)
	}
	review = updated.ReviewFor("wf2_step_2")
	if len(review.CommitteeMembers) != 2 {
		t.Errorf("Expected 2 members, got %v", review.CommitteeMembers)
	}
	if len(review.ChangeLog) != 2 {
		t.Fatalf("Expected 2 change log entries, got %d", len(review.ChangeLog))
	}
	change := review.ChangeLog[1]
	if change.OldValue == nil || *change.OldValue != 7 || *change.NewValue != 9 || change.ChangedBy != "c2" {
		t.Errorf("Expected 7→9 by c2, got %+v", change)
	}
	if review.Comments != "委员会意见" {
		t.Errorf("Expected comments updated, got %q", review.Comments)
	}

	// 同分重复提交不追加change log
	updated, err = committeeSvc.SaveCommitteeReview(ctx, appraisal.ID, "c2", committeeRoles, &SaveCommitteeReviewRequest{
		Responses: []entity.QuestionResponse{
			{QuestionID: "tpl1_q1", Kind: entity.QuestionKindRating, Score: floatPtr(9)},
		},
	})
	if err != nil {
		t.Fatalf("Idempotent save failed: %v", err)
	}
	review = updated.ReviewFor("wf2_step_2")
	if len(review.ChangeLog) != 2 {
		t.Errorf("Expected change log unchanged for same score, got %d entries", len(review.ChangeLog))
	}
	if len(review.CommitteeMembers) != 2 {
		t.Errorf("Expected member registration idempotent, got %v", review.CommitteeMembers)
	}
}

func TestSaveCommendationUpsert(t *testing.T) {
	db, _, appraisalSvc, committeeSvc := newTestServices(t)
	appraisal := seedCommitteeFixture(t, db, appraisalSvc)
	ctx := context.Background()

	// 评审记录不存在时不能提交评语
	_, err := committeeSvc.SaveCommendation(ctx, appraisal.ID, "c1", committeeRoles, &CommendationRequest{Comment: "表现优秀"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound before review exists, got %v", err)
	}

	seedBaseCommitteeReview(t, appraisalSvc, appraisal.ID)

	if _, err := committeeSvc.SaveCommendation(ctx, appraisal.ID, "c1", committeeRoles, &CommendationRequest{Comment: "表现优秀"}); err != nil {
		t.Fatalf("SaveCommendation failed: %v", err)
	}
	updated, err := committeeSvc.SaveCommendation(ctx, appraisal.ID, "c1", committeeRoles, &CommendationRequest{Comment: "表现非常优秀"})
	if err != nil {
		t.Fatalf("Second SaveCommendation failed: %v", err)
	}

	review := updated.ReviewFor("wf2_step_2")
	if len(review.Commendations) != 1 {
		t.Fatalf("Expected single commendation per member, got %d", len(review.Commendations))
	}
	if review.Commendations[0].Comment != "表现非常优秀" {
		t.Errorf("Expected overwritten comment, got %q", review.Commendations[0].Comment)
	}
}

func TestFinalizeCommitteeReview(t *testing.T) {
	db, repos, appraisalSvc, committeeSvc := newTestServices(t)
	appraisal := seedCommitteeFixture(t, db, appraisalSvc)
	seedBaseCommitteeReview(t, appraisalSvc, appraisal.ID)
	ctx := context.Background()

	// 必答题作答不全时不能定稿
	truncated, err := repos.Appraisal.FindByID(ctx, appraisal.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	review := truncated.ReviewFor("wf2_step_2")
	review.Responses = review.Responses[:1]
	if err := repos.Appraisal.Save(ctx, truncated); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := committeeSvc.FinalizeCommitteeReview(ctx, appraisal.ID, "c2", committeeRoles); !errors.Is(err, ErrBadRequest) {
		t.Errorf("Expected ErrBadRequest with unanswered required question, got %v", err)
	}

	// 补齐作答并改分后定稿
	if _, err := committeeSvc.SaveCommitteeReview(ctx, appraisal.ID, "c2", committeeRoles, &SaveCommitteeReviewRequest{
		Responses: []entity.QuestionResponse{
			{QuestionID: "tpl1_q1", Kind: entity.QuestionKindRating, Score: floatPtr(9)},
			{QuestionID: "tpl1_q2", Kind: entity.QuestionKindText, Text: "建议晋升"},
		},
	}); err != nil {
		t.Fatalf("SaveCommitteeReview failed: %v", err)
	}
	if err := committeeSvc.LockQuestion(ctx, appraisal.ID, "tpl1_q1", "c1", committeeRoles); err != nil {
		t.Fatalf("LockQuestion failed: %v", err)
	}

	finalized, err := committeeSvc.FinalizeCommitteeReview(ctx, appraisal.ID, "c2", committeeRoles)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if finalized.Status != entity.AppraisalStatusPendingEmployeeReview {
		t.Errorf("Expected pending_employee_review, got %s", finalized.Status)
	}
	if len(finalized.LockedQuestions) != 0 {
		t.Errorf("Expected locks cleared on finalize, got %d", len(finalized.LockedQuestions))
	}
	review = finalized.ReviewFor("wf2_step_2")
	if review.Status != entity.ReviewStatusCompleted {
		t.Errorf("Expected completed review, got %s", review.Status)
	}
	// 定稿重算综合分，反映协作后的最新分数
	if review.OverallScore == nil || *review.OverallScore != 9 {
		t.Errorf("Expected committee score 9, got %v", review.OverallScore)
	}
	if assignment := finalized.AssignmentFor("wf2_step_2"); assignment == nil || assignment.Status != entity.AssignmentStatusCompleted {
		t.Errorf("Expected committee assignment completed, got %+v", assignment)
	}

	// 员工确认后完结，末环节接受即终态
	completed, err := appraisalSvc.Accept(ctx, appraisal.ID, "emp-1", []string{entity.RoleEmployee})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if completed.Status != entity.AppraisalStatusCompleted {
		t.Errorf("Expected completed, got %s", completed.Status)
	}
	// (8 + 9) / 2
	if completed.OverallScore == nil || *completed.OverallScore != 8.5 {
		t.Errorf("Expected final score 8.5, got %v", completed.OverallScore)
	}
}
