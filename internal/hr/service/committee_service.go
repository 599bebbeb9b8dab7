package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
)

// QuestionLockTTL 题目协作锁有效期
// 超时未续期的锁视为失效，其他成员可接管
const QuestionLockTTL = 5 * time.Minute

// QuestionLocker 题目协作锁
// 锁是协商性质的：只约束committee成员间的编辑提示，不做强互斥
type QuestionLocker interface {
	// Lock 获取或续期锁，锁被他人持有且未过期时返回冲突
	Lock(ctx context.Context, appraisalID, questionID, userID string) error
	// Unlock 释放自己持有的锁，未持有时静默返回
	Unlock(ctx context.Context, appraisalID, questionID, userID string) error
}

// documentQuestionLocker 把锁记在考核实例文档里的实现
type documentQuestionLocker struct {
	repo *repository.AppraisalRepository
}

// NewDocumentQuestionLocker 创建文档型题目锁
func NewDocumentQuestionLocker(repo *repository.AppraisalRepository) QuestionLocker {
	return &documentQuestionLocker{repo: repo}
}

func (l *documentQuestionLocker) Lock(ctx context.Context, appraisalID, questionID, userID string) error {
	appraisal, err := l.repo.FindByID(ctx, appraisalID)
	if err != nil {
		return err
	}

	now := time.Now()
	pruneExpiredLocks(appraisal, now)

	if lock := appraisal.LockFor(questionID); lock != nil {
		if lock.LockedBy != userID {
			return conflictf("题目正在被%s编辑", lock.LockedBy)
		}
		// 自己的锁：续期
		lock.LockedAt = now
	} else {
		appraisal.LockedQuestions = append(appraisal.LockedQuestions, entity.QuestionLock{
			QuestionID: questionID,
			LockedBy:   userID,
			LockedAt:   now,
		})
	}

	return saveWithConflict(ctx, l.repo, appraisal)
}

func (l *documentQuestionLocker) Unlock(ctx context.Context, appraisalID, questionID, userID string) error {
	appraisal, err := l.repo.FindByID(ctx, appraisalID)
	if err != nil {
		return err
	}

	lock := appraisal.LockFor(questionID)
	if lock == nil || lock.LockedBy != userID {
		// 不持有锁时静默返回，不落库
		return nil
	}

	appraisal.RemoveLock(questionID)
	return saveWithConflict(ctx, l.repo, appraisal)
}

// pruneExpiredLocks 清理过期锁
func pruneExpiredLocks(appraisal *entity.Appraisal, now time.Time) {
	kept := appraisal.LockedQuestions[:0]
	for _, lock := range appraisal.LockedQuestions {
		if now.Sub(lock.LockedAt) < QuestionLockTTL {
			kept = append(kept, lock)
		}
	}
	appraisal.LockedQuestions = kept
}

// saveWithConflict 带乐观锁保存并映射冲突错误
func saveWithConflict(ctx context.Context, repo *repository.AppraisalRepository, appraisal *entity.Appraisal) error {
	appraisal.UpdatedAt = time.Now()
	if err := repo.Save(ctx, appraisal); err != nil {
		if err == repository.ErrVersionConflict {
			return conflictf("考核实例已被并发修改，请刷新后重试")
		}
		return err
	}
	return nil
}

// CommitteeService 委员会共享评分服务
// 委员会环节的评审记录由多名成员协作编辑，最后由任一成员定稿
type CommitteeService struct {
	repo         *repository.AppraisalRepository
	workflowRepo *repository.WorkflowRepository
	templateRepo *repository.TemplateRepository
	locker       QuestionLocker
	audit        *AuditService
	notification *NotificationService
}

// NewCommitteeService 创建委员会服务
func NewCommitteeService(repo *repository.AppraisalRepository, workflowRepo *repository.WorkflowRepository, templateRepo *repository.TemplateRepository, audit *AuditService, notification *NotificationService) *CommitteeService {
	return &CommitteeService{
		repo:         repo,
		workflowRepo: workflowRepo,
		templateRepo: templateRepo,
		locker:       NewDocumentQuestionLocker(repo),
		audit:        audit,
		notification: notification,
	}
}

// SaveCommitteeReviewRequest 保存委员会评分请求（增量合并）
// step_id缺省时取当前环节
type SaveCommitteeReviewRequest struct {
	StepID    string                    `json:"step_id"`
	Responses []entity.QuestionResponse `json:"responses"`
	Comments  *string                   `json:"comments"`
}

// CommendationRequest 委员评语请求
type CommendationRequest struct {
	StepID  string `json:"step_id"`
	Comment string `json:"comment" binding:"required"`
}

// requireActive 终结态的考核不再接受委员会操作
func requireActive(appraisal *entity.Appraisal) error {
	if appraisal.Status == entity.AppraisalStatusCompleted || appraisal.Status == entity.AppraisalStatusCancelled {
		return conflictf("考核实例已终结，不接受委员会操作: %s", appraisal.Status)
	}
	return nil
}

// resolveStep 按step_id定位步骤，缺省取当前环节
func (s *CommitteeService) resolveStep(ctx context.Context, appraisal *entity.Appraisal, stepID string) (*entity.WorkflowStep, error) {
	workflow, err := s.workflowRepo.FindByID(ctx, appraisal.WorkflowID)
	if err != nil {
		return nil, err
	}
	if stepID != "" {
		step := workflow.StepByID(stepID)
		if step == nil {
			return nil, badRequestf("步骤不属于该工作流: %s", stepID)
		}
		return step, nil
	}
	step := workflow.StepAt(appraisal.CurrentStep)
	if step == nil {
		return nil, fmt.Errorf("当前步骤索引越界: %d", appraisal.CurrentStep)
	}
	return step, nil
}

// requireCommittee 校验操作人具备committee角色
func requireCommittee(actorRoles []string) error {
	if !hasRole(actorRoles, entity.RoleCommittee) && !hasRole(actorRoles, entity.RoleHRAdmin) {
		return forbiddenf("仅考核委员会成员可操作")
	}
	return nil
}

// LockQuestion 锁定题目供编辑
func (s *CommitteeService) LockQuestion(ctx context.Context, appraisalID, questionID, actorID string, actorRoles []string) error {
	if err := requireCommittee(actorRoles); err != nil {
		return err
	}
	appraisal, err := s.repo.FindByID(ctx, appraisalID)
	if err != nil {
		return err
	}
	if err := requireActive(appraisal); err != nil {
		return err
	}
	return s.locker.Lock(ctx, appraisalID, questionID, actorID)
}

// UnlockQuestion 释放题目锁
// 释放不存在或他人持有的锁是静默no-op，不做角色校验
func (s *CommitteeService) UnlockQuestion(ctx context.Context, appraisalID, questionID, actorID string) error {
	return s.locker.Unlock(ctx, appraisalID, questionID, actorID)
}

// SaveCommitteeReview 保存委员会评分（可多次调用，增量合并）
// 评审记录必须已由环节负责人首次提交；历史上单人提交的记录迁移为委员会形态
func (s *CommitteeService) SaveCommitteeReview(ctx context.Context, appraisalID, actorID string, actorRoles []string, req *SaveCommitteeReviewRequest) (*entity.Appraisal, error) {
	if err := requireCommittee(actorRoles); err != nil {
		return nil, err
	}

	appraisal, err := s.repo.FindByID(ctx, appraisalID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(appraisal); err != nil {
		return nil, err
	}
	step, err := s.resolveStep(ctx, appraisal, req.StepID)
	if err != nil {
		return nil, err
	}

	template, err := s.templateRepo.FindByID(ctx, appraisal.TemplateID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	review := appraisal.ReviewFor(step.ID)
	if review == nil {
		return nil, notFoundf("「%s」环节尚无评审记录", step.Name)
	}
	if !review.IsCommittee {
		// 迁移单人记录为委员会共享记录
		review.IsCommittee = true
		if review.ReviewerID != "" && !containsString(review.CommitteeMembers, review.ReviewerID) {
			review.CommitteeMembers = append(review.CommitteeMembers, review.ReviewerID)
		}
	}
	// 委员会编辑中的记录回到in_progress，定稿后再置completed
	review.Status = entity.ReviewStatusInProgress

	// 成员登记幂等
	if !containsString(review.CommitteeMembers, actorID) {
		review.CommitteeMembers = append(review.CommitteeMembers, actorID)
	}

	// 按题目浅合并作答，仅分数变化记入change_log
	for _, incoming := range req.Responses {
		if err := validateSingleResponse(template, &incoming); err != nil {
			return nil, err
		}
		existing := review.ResponseFor(incoming.QuestionID)
		if existing != nil {
			if !floatPtrEqual(existing.Score, incoming.Score) {
				review.ChangeLog = append(review.ChangeLog, entity.ScoreChange{
					QuestionID: incoming.QuestionID,
					OldValue:   existing.Score,
					NewValue:   incoming.Score,
					ChangedBy:  actorID,
					ChangedAt:  now,
				})
			}
			*existing = incoming
		} else {
			if incoming.Score != nil {
				review.ChangeLog = append(review.ChangeLog, entity.ScoreChange{
					QuestionID: incoming.QuestionID,
					OldValue:   nil,
					NewValue:   incoming.Score,
					ChangedBy:  actorID,
					ChangedAt:  now,
				})
			}
			review.Responses = append(review.Responses, incoming)
		}
	}

	if req.Comments != nil {
		review.Comments = *req.Comments
	}
	review.SubmittedAt = now

	if err := saveWithConflict(ctx, s.repo, appraisal); err != nil {
		return nil, err
	}

	return appraisal, nil
}

// SaveCommendation 保存委员评语，同一委员重复提交覆盖旧评语
func (s *CommitteeService) SaveCommendation(ctx context.Context, appraisalID, actorID string, actorRoles []string, req *CommendationRequest) (*entity.Appraisal, error) {
	if err := requireCommittee(actorRoles); err != nil {
		return nil, err
	}

	appraisal, err := s.repo.FindByID(ctx, appraisalID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(appraisal); err != nil {
		return nil, err
	}
	step, err := s.resolveStep(ctx, appraisal, req.StepID)
	if err != nil {
		return nil, err
	}

	review := appraisal.ReviewFor(step.ID)
	if review == nil {
		return nil, notFoundf("「%s」环节尚无评审记录", step.Name)
	}

	now := time.Now()
	updated := false
	for i := range review.Commendations {
		if review.Commendations[i].UserID == actorID {
			review.Commendations[i].Comment = req.Comment
			review.Commendations[i].UpdatedAt = now
			updated = true
			break
		}
	}
	if !updated {
		review.Commendations = append(review.Commendations, entity.Commendation{
			UserID:    actorID,
			Comment:   req.Comment,
			UpdatedAt: now,
		})
	}

	if err := saveWithConflict(ctx, s.repo, appraisal); err != nil {
		return nil, err
	}

	return appraisal, nil
}

// FinalizeCommitteeReview 委员会评审定稿
// 定稿后进入员工确认门，与普通环节提交一致
func (s *CommitteeService) FinalizeCommitteeReview(ctx context.Context, appraisalID, actorID string, actorRoles []string) (*entity.Appraisal, error) {
	if err := requireCommittee(actorRoles); err != nil {
		return nil, err
	}

	appraisal, err := s.repo.FindByID(ctx, appraisalID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(appraisal); err != nil {
		return nil, err
	}
	step, err := s.resolveStep(ctx, appraisal, "")
	if err != nil {
		return nil, err
	}
	if step.ResponsibleRole != entity.RoleCommittee {
		return nil, conflictf("当前环节不是委员会环节: %s", step.Name)
	}

	review := appraisal.ReviewFor(step.ID)
	if review == nil {
		return nil, notFoundf("「%s」环节尚无评审记录", step.Name)
	}

	template, err := s.templateRepo.FindByID(ctx, appraisal.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := validateResponses(template, review.Responses); err != nil {
		return nil, err
	}

	now := time.Now()
	review.Status = entity.ReviewStatusCompleted
	review.SubmittedAt = now
	// 共享编辑可能改过分数，定稿时重算
	review.OverallScore = computeReviewScore(template, review.Responses)
	if assignment := appraisal.AssignmentFor(step.ID); assignment != nil {
		assignment.Status = entity.AssignmentStatusCompleted
	}
	// 定稿后锁全部失效
	appraisal.LockedQuestions = nil
	appraisal.RejectionReason = ""
	entering := appraisal.Status != entity.AppraisalStatusPendingEmployeeReview
	appraisal.Status = entity.AppraisalStatusPendingEmployeeReview
	appraisal.AppendHistory(entity.HistoryReviewSubmitted, actorID,
		fmt.Sprintf("「%s」环节委员会定稿", step.Name), now)
	if entering {
		appraisal.AppendHistory(entity.HistoryPendingEmployeeReview, actorID, "", now)
	}

	if err := saveWithConflict(ctx, s.repo, appraisal); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, "appraisal.committee_finalize", "appraisal", appraisal.ID,
		fmt.Sprintf("委员会「%s」环节定稿", step.Name), nil)
	s.notification.Notify(ctx, appraisal.EmployeeID, entity.NotificationKindPendingAccept,
		"考核评审待确认",
		fmt.Sprintf("%s 考核的「%s」环节已完成委员会评审，请确认", appraisal.Period, step.Name), "")

	return appraisal, nil
}

// validateSingleResponse 校验单条作答
func validateSingleResponse(template *entity.ReviewTemplate, resp *entity.QuestionResponse) error {
	for i := range template.Questions {
		question := &template.Questions[i]
		if question.ID != resp.QuestionID {
			continue
		}
		if resp.Kind != question.Kind {
			return badRequestf("题目%s作答类型不匹配: %s", resp.QuestionID, resp.Kind)
		}
		if question.Kind == entity.QuestionKindRating && resp.Score != nil {
			if *resp.Score < 0 || *resp.Score > question.MaxScore {
				return badRequestf("题目%s分数超出范围[0,%.1f]", resp.QuestionID, question.MaxScore)
			}
		}
		return nil
	}
	return badRequestf("题目不属于该模板: %s", resp.QuestionID)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
