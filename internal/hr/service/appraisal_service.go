package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
)

// AppraisalService 考核实例服务 — 工作流状态机
//
// 流转规则：
//   - 非员工环节提交后进入pending_employee_review，等待员工确认
//   - 员工确认通过：中间环节则推进到下一环节，末环节则完结
//   - 员工驳回：回到in_progress，当前环节重新评审
//   - 员工本人环节提交直接推进，不经确认门
type AppraisalService struct {
	repo         *repository.AppraisalRepository
	workflowRepo *repository.WorkflowRepository
	templateRepo *repository.TemplateRepository
	userRepo     *repository.UserRepository
	periodRepo   *repository.PeriodRepository
	audit        *AuditService
	notification *NotificationService
}

// NewAppraisalService 创建考核实例服务
func NewAppraisalService(
	repo *repository.AppraisalRepository,
	workflowRepo *repository.WorkflowRepository,
	templateRepo *repository.TemplateRepository,
	userRepo *repository.UserRepository,
	periodRepo *repository.PeriodRepository,
	audit *AuditService,
	notification *NotificationService,
) *AppraisalService {
	return &AppraisalService{
		repo:         repo,
		workflowRepo: workflowRepo,
		templateRepo: templateRepo,
		userRepo:     userRepo,
		periodRepo:   periodRepo,
		audit:        audit,
		notification: notification,
	}
}

// InitiateAppraisalRequest 发起考核请求
type InitiateAppraisalRequest struct {
	EmployeeID string `json:"employee_id" binding:"required"`
	Period     string `json:"period" binding:"required"`
	WorkflowID string `json:"workflow_id"` // 留空使用默认工作流
	TemplateID string `json:"template_id" binding:"required"`
	// 步骤手工指派：step_id → user_id，值为"auto"或缺省时按角色自动解析
	Assignments map[string]string `json:"assignments"`
}

// SubmitReviewRequest 提交评审请求
// step_id缺省时取当前环节
type SubmitReviewRequest struct {
	StepID       string                    `json:"step_id"`
	Responses    []entity.QuestionResponse `json:"responses" binding:"required"`
	OverallScore *float64                  `json:"overall_score"`
	Comments     string                    `json:"comments"`
}

// RejectRequest 员工驳回请求
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// AdminEditRequest 管理员修订请求
type AdminEditRequest struct {
	OverallScore  *float64       `json:"overall_score"`
	FinalComments *string        `json:"final_comments"`
	Reviews       entity.Reviews `json:"reviews"`
}

// save 带乐观锁保存，版本冲突映射为业务冲突错误
func (s *AppraisalService) save(ctx context.Context, appraisal *entity.Appraisal) error {
	appraisal.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, appraisal); err != nil {
		if err == repository.ErrVersionConflict {
			return conflictf("考核实例已被并发修改，请刷新后重试")
		}
		return err
	}
	return nil
}

// Initiate 发起考核实例
func (s *AppraisalService) Initiate(ctx context.Context, actorID string, req *InitiateAppraisalRequest) (*entity.Appraisal, error) {
	employee, err := s.userRepo.FindByID(ctx, req.EmployeeID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, notFoundf("员工不存在: %s", req.EmployeeID)
		}
		return nil, err
	}

	// 同员工同周期只能有一个未终结实例
	if existing, err := s.repo.FindActiveByEmployeeAndPeriod(ctx, req.EmployeeID, req.Period); err == nil {
		return nil, conflictf("该员工在周期%s已有进行中的考核: %s", req.Period, existing.ID)
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	workflow, err := s.resolveWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if len(workflow.Steps) == 0 {
		return nil, badRequestf("工作流没有步骤: %s", workflow.ID)
	}

	if _, err := s.templateRepo.FindByID(ctx, req.TemplateID); err != nil {
		if err == repository.ErrNotFound {
			return nil, notFoundf("模板不存在: %s", req.TemplateID)
		}
		return nil, err
	}

	assignments, err := s.resolveAssignments(ctx, workflow, employee, req.Assignments)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	appraisal := &entity.Appraisal{
		ID:              generateID(),
		EmployeeID:      req.EmployeeID,
		TemplateID:      req.TemplateID,
		WorkflowID:      workflow.ID,
		Period:          req.Period,
		Status:          entity.AppraisalStatusInProgress,
		CurrentStep:     0,
		StepAssignments: assignments,
		Reviews:         entity.Reviews{},
		History:         entity.History{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	appraisal.AppendHistory(entity.HistoryInitiated, actorID, "", now)

	if err := s.repo.Create(ctx, appraisal); err != nil {
		return nil, fmt.Errorf("创建考核实例失败: %w", err)
	}

	// 周期参评名单存在时标记已发起
	if period, err := s.periodRepo.FindByLabel(ctx, req.Period); err == nil {
		_ = s.periodRepo.MarkAssignmentInitialized(ctx, period.ID, req.EmployeeID)
	}

	s.audit.Record(ctx, actorID, "appraisal.initiate", "appraisal", appraisal.ID,
		fmt.Sprintf("发起%s周期考核: %s", req.Period, employee.Name), nil)
	s.notifyCurrentReviewer(ctx, appraisal, workflow, employee)

	return appraisal, nil
}

// resolveWorkflow 取指定工作流，留空则取默认工作流
func (s *AppraisalService) resolveWorkflow(ctx context.Context, workflowID string) (*entity.AppraisalWorkflow, error) {
	if workflowID != "" {
		workflow, err := s.workflowRepo.FindByID(ctx, workflowID)
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, notFoundf("工作流不存在: %s", workflowID)
			}
			return nil, err
		}
		return workflow, nil
	}

	workflows, _, err := s.workflowRepo.FindAll(ctx, 1, 1000, map[string]string{"status": entity.WorkflowStatusActive})
	if err != nil {
		return nil, err
	}
	for i := range workflows {
		if workflows[i].IsDefault {
			return s.workflowRepo.FindByID(ctx, workflows[i].ID)
		}
	}
	return nil, badRequestf("未指定工作流且不存在默认工作流")
}

// resolveAssignments 解析各步骤负责人
// 手工指派优先；employee/supervisor角色可自动解析，解析不到的步骤留空待后续指派
func (s *AppraisalService) resolveAssignments(ctx context.Context, workflow *entity.AppraisalWorkflow, employee *entity.User, manual map[string]string) (entity.StepAssignments, error) {
	assignments := make(entity.StepAssignments, 0, len(workflow.Steps))
	for i := range workflow.Steps {
		step := &workflow.Steps[i]

		assigned := manual[step.ID]
		if assigned != "" && assigned != entity.ManualAssignmentAuto {
			if _, err := s.userRepo.FindByID(ctx, assigned); err != nil {
				if err == repository.ErrNotFound {
					return nil, badRequestf("步骤%s指派的用户不存在: %s", step.Name, assigned)
				}
				return nil, err
			}
		} else {
			switch step.ResponsibleRole {
			case entity.RoleEmployee:
				assigned = employee.ID
			case entity.RoleSupervisor:
				// 无直属上级时留空，后续再指派
				assigned = employee.SupervisorID
			default:
				// hr/committee环节没有确定的自动解析对象
				assigned = ""
			}
		}

		assignments = append(assignments, entity.StepAssignment{
			StepID:       step.ID,
			AssignedUser: assigned,
			Status:       entity.AssignmentStatusPending,
		})
	}
	return assignments, nil
}

// SubmitReview 提交当前环节的评审
func (s *AppraisalService) SubmitReview(ctx context.Context, appraisalID, actorID string, actorRoles []string, req *SubmitReviewRequest) (*entity.Appraisal, error) {
	appraisal, err := s.repo.FindByID(ctx, appraisalID)
	if err != nil {
		return nil, err
	}
	if appraisal.Status != entity.AppraisalStatusInProgress {
		return nil, conflictf("考核实例当前状态不接受评审提交: %s", appraisal.Status)
	}

	workflow, err := s.workflowRepo.FindByID(ctx, appraisal.WorkflowID)
	if err != nil {
		return nil, err
	}
	step := workflow.StepAt(appraisal.CurrentStep)
	if step == nil {
		return nil, fmt.Errorf("当前步骤索引越界: %d", appraisal.CurrentStep)
	}
	if req.StepID != "" && req.StepID != step.ID {
		if workflow.StepByID(req.StepID) == nil {
			return nil, badRequestf("步骤不属于该工作流: %s", req.StepID)
		}
		// 状态机按序推进，只接受当前环节的提交
		return nil, conflictf("步骤%s不是当前环节", req.StepID)
	}

	assignment := appraisal.AssignmentFor(step.ID)
	if assignment == nil {
		return nil, badRequestf("当前步骤缺少分配记录: %s", step.ID)
	}
	if assignment.AssignedUser == "" {
		return nil, conflictf("当前步骤尚未指派负责人: %s", step.Name)
	}
	if assignment.AssignedUser != actorID && !hasRole(actorRoles, entity.RoleHRAdmin) {
		return nil, forbiddenf("仅步骤负责人可提交该环节评审")
	}

	template, err := s.templateRepo.FindByID(ctx, appraisal.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := validateResponses(template, req.Responses); err != nil {
		return nil, err
	}

	now := time.Now()
	review := entity.Review{
		StepID:       step.ID,
		ReviewerID:   actorID,
		ReviewerRole: step.ResponsibleRole,
		Responses:    req.Responses,
		OverallScore: req.OverallScore,
		Comments:     req.Comments,
		SubmittedAt:  now,
		Status:       entity.ReviewStatusCompleted,
	}
	if review.OverallScore == nil {
		review.OverallScore = computeReviewScore(template, req.Responses)
	}

	appraisal.UpsertReview(review)
	assignment.Status = entity.AssignmentStatusCompleted
	// 重新提交覆盖之前的驳回原因
	appraisal.RejectionReason = ""
	appraisal.AppendHistory(entity.HistoryReviewSubmitted, actorID,
		fmt.Sprintf("提交「%s」环节评审", step.Name), now)

	employee, err := s.userRepo.FindByID(ctx, appraisal.EmployeeID)
	if err != nil {
		return nil, err
	}

	if step.ResponsibleRole == entity.RoleEmployee {
		// 员工本人环节直接推进，不经确认门
		s.advance(ctx, appraisal, workflow, employee)
	} else {
		// 非员工环节进入员工确认门
		appraisal.Status = entity.AppraisalStatusPendingEmployeeReview
		appraisal.AppendHistory(entity.HistoryPendingEmployeeReview, actorID, "", now)
	}

	if err := s.save(ctx, appraisal); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, "appraisal.submit_review", "appraisal", appraisal.ID,
		fmt.Sprintf("提交「%s」环节评审", step.Name), nil)

	if appraisal.Status == entity.AppraisalStatusPendingEmployeeReview {
		s.notification.Notify(ctx, appraisal.EmployeeID, entity.NotificationKindPendingAccept,
			"考核评审待确认",
			fmt.Sprintf("%s 考核的「%s」环节已完成评审，请确认", appraisal.Period, step.Name), "")
	} else if appraisal.Status == entity.AppraisalStatusInProgress {
		s.notifyCurrentReviewer(ctx, appraisal, workflow, employee)
	}

	return appraisal, nil
}

// Accept 确认评审结果，员工本人或hr_admin可操作
// 待确认状态下是延迟的推进：中间环节推进到下一环节，末环节完结
// 进行中状态下视为最终签收，直接完结考核
func (s *AppraisalService) Accept(ctx context.Context, appraisalID, actorID string, actorRoles []string) (*entity.Appraisal, error) {
	appraisal, err := s.repo.FindByID(ctx, appraisalID)
	if err != nil {
		return nil, err
	}
	if appraisal.EmployeeID != actorID && !hasRole(actorRoles, entity.RoleHRAdmin) {
		return nil, forbiddenf("仅被考核员工本人或管理员可确认")
	}
	if appraisal.Status != entity.AppraisalStatusPendingEmployeeReview &&
		appraisal.Status != entity.AppraisalStatusInProgress {
		return nil, conflictf("考核实例已终结，不可确认: %s", appraisal.Status)
	}

	workflow, err := s.workflowRepo.FindByID(ctx, appraisal.WorkflowID)
	if err != nil {
		return nil, err
	}
	employee, err := s.userRepo.FindByID(ctx, appraisal.EmployeeID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if appraisal.Status == entity.AppraisalStatusPendingEmployeeReview {
		appraisal.Status = entity.AppraisalStatusInProgress
		if s.advance(ctx, appraisal, workflow, employee) {
			appraisal.AppendHistory(entity.HistoryAcceptedFinal, actorID, "", now)
		} else {
			appraisal.AppendHistory(entity.HistoryAcceptedIntermediate, actorID, "", now)
		}
	} else {
		// 进行中直接确认：最终签收，不再走剩余环节
		appraisal.Status = entity.AppraisalStatusCompleted
		if appraisal.OverallScore == nil {
			appraisal.OverallScore = computeFinalScore(appraisal.Reviews)
		}
		appraisal.AppendHistory(entity.HistoryAcceptedFinal, actorID, "", now)
		s.notification.NotifyResult(ctx, appraisal.EmployeeID, appraisal.Period, "已完成", appraisal.FinalComments)
	}

	if err := s.save(ctx, appraisal); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, "appraisal.accept", "appraisal", appraisal.ID, "", nil)

	if appraisal.Status == entity.AppraisalStatusInProgress {
		s.notifyCurrentReviewer(ctx, appraisal, workflow, employee)
	}

	return appraisal, nil
}

// Reject 驳回评审结果
// 待确认状态是员工驳回刚提交的评审：回到当前环节重评，步骤指针不动
// 进行中状态是评审人驳回上一环节：步骤指针回退一格（已在首环节则只记录）
func (s *AppraisalService) Reject(ctx context.Context, appraisalID, actorID string, actorRoles []string, req *RejectRequest) (*entity.Appraisal, error) {
	appraisal, err := s.repo.FindByID(ctx, appraisalID)
	if err != nil {
		return nil, err
	}

	workflow, err := s.workflowRepo.FindByID(ctx, appraisal.WorkflowID)
	if err != nil {
		return nil, err
	}
	step := workflow.StepAt(appraisal.CurrentStep)
	if step == nil {
		return nil, fmt.Errorf("当前步骤索引越界: %d", appraisal.CurrentStep)
	}

	now := time.Now()
	switch appraisal.Status {
	case entity.AppraisalStatusPendingEmployeeReview:
		if appraisal.EmployeeID != actorID && !hasRole(actorRoles, entity.RoleHRAdmin) {
			return nil, forbiddenf("仅被考核员工本人或管理员可驳回")
		}
		appraisal.Status = entity.AppraisalStatusInProgress
		if assignment := appraisal.AssignmentFor(step.ID); assignment != nil {
			assignment.Status = entity.AssignmentStatusInProgress
		}
		appraisal.AppendHistory(entity.HistoryRejectedByEmployee, actorID, req.Reason, now)
	case entity.AppraisalStatusInProgress:
		assignment := appraisal.AssignmentFor(step.ID)
		isAssignee := assignment != nil && assignment.AssignedUser == actorID
		if !isAssignee && !hasRole(actorRoles, entity.RoleHRAdmin) {
			return nil, forbiddenf("仅当前环节负责人或管理员可驳回")
		}
		if appraisal.CurrentStep > 0 {
			appraisal.CurrentStep--
			step = workflow.StepAt(appraisal.CurrentStep)
			if rolled := appraisal.AssignmentAt(appraisal.CurrentStep); rolled != nil {
				rolled.Status = entity.AssignmentStatusInProgress
			}
		}
		appraisal.AppendHistory(entity.HistoryRejected, actorID, req.Reason, now)
	default:
		return nil, conflictf("考核实例已终结，不可驳回: %s", appraisal.Status)
	}
	appraisal.RejectionReason = req.Reason

	if err := s.save(ctx, appraisal); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, "appraisal.reject", "appraisal", appraisal.ID, req.Reason, nil)

	// 通知回退后当前环节的评审人重新评审
	if assignment := appraisal.AssignmentFor(step.ID); assignment != nil && assignment.AssignedUser != "" && assignment.AssignedUser != actorID {
		s.notification.Notify(ctx, assignment.AssignedUser, entity.NotificationKindRejected,
			"评审被驳回",
			fmt.Sprintf("%s 驳回了评审，「%s」环节需重新提交：%s", displayName(appraisal), step.Name, req.Reason), "")
	}

	return appraisal, nil
}

// advance 推进状态机：有下一环节则推进并返回false，否则完结并返回true
// 历史记录由调用方按语境追加，调用方负责保存
func (s *AppraisalService) advance(ctx context.Context, appraisal *entity.Appraisal, workflow *entity.AppraisalWorkflow, employee *entity.User) bool {
	next := appraisal.CurrentStep + 1
	if workflow.StepAt(next) != nil {
		appraisal.CurrentStep = next
		if assignment := appraisal.AssignmentAt(next); assignment != nil {
			assignment.Status = entity.AssignmentStatusInProgress
		}
		return false
	}

	// 末环节：完结
	appraisal.Status = entity.AppraisalStatusCompleted
	appraisal.OverallScore = computeFinalScore(appraisal.Reviews)

	s.notification.NotifyResult(ctx, appraisal.EmployeeID, appraisal.Period, "已完成", appraisal.FinalComments)
	return true
}

// notifyCurrentReviewer 通知当前环节负责人
func (s *AppraisalService) notifyCurrentReviewer(ctx context.Context, appraisal *entity.Appraisal, workflow *entity.AppraisalWorkflow, employee *entity.User) {
	step := workflow.StepAt(appraisal.CurrentStep)
	if step == nil {
		return
	}
	assignment := appraisal.AssignmentFor(step.ID)
	if assignment == nil || assignment.AssignedUser == "" {
		return
	}
	s.notification.NotifyReviewTurn(ctx, assignment.AssignedUser, employee.Name, step.Name, appraisal.Period)
}

// Get 获取考核实例
// 非elevated角色看不到管理员修订版本；访问限员工本人、环节负责人与elevated角色
func (s *AppraisalService) Get(ctx context.Context, id, viewerID string, viewerRoles []string) (*entity.Appraisal, error) {
	appraisal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(appraisal, viewerID, viewerRoles) {
		return nil, forbiddenf("无权查看该考核实例")
	}
	if !isElevated(viewerRoles) {
		appraisal.AdminEditedVersion = nil
	}
	return appraisal, nil
}

// canView 访问控制：elevated、员工本人、任一环节负责人、委员会成员
func (s *AppraisalService) canView(appraisal *entity.Appraisal, viewerID string, viewerRoles []string) bool {
	if isElevated(viewerRoles) {
		return true
	}
	if appraisal.EmployeeID == viewerID {
		return true
	}
	for i := range appraisal.StepAssignments {
		if appraisal.StepAssignments[i].AssignedUser == viewerID {
			return true
		}
	}
	for i := range appraisal.Reviews {
		for _, member := range appraisal.Reviews[i].CommitteeMembers {
			if member == viewerID {
				return true
			}
		}
	}
	return hasRole(viewerRoles, entity.RoleCommittee)
}

// List 查询考核实例列表
// 非elevated角色只能查自己的实例
func (s *AppraisalService) List(ctx context.Context, viewerID string, viewerRoles []string, page, pageSize int, filters map[string]string) (map[string]interface{}, error) {
	if !isElevated(viewerRoles) && !hasRole(viewerRoles, entity.RoleCommittee) {
		filters["employee_id"] = viewerID
	}
	appraisals, total, err := s.repo.FindAll(ctx, page, pageSize, filters)
	if err != nil {
		return nil, err
	}
	if !isElevated(viewerRoles) {
		for i := range appraisals {
			appraisals[i].AdminEditedVersion = nil
		}
	}
	return map[string]interface{}{
		"appraisals": appraisals,
		"total":      total,
	}, nil
}

// History 查询考核实例流转历史
func (s *AppraisalService) History(ctx context.Context, id, viewerID string, viewerRoles []string) (entity.History, error) {
	appraisal, err := s.Get(ctx, id, viewerID, viewerRoles)
	if err != nil {
		return nil, err
	}
	return appraisal.History, nil
}

// UpdateAdminVersion 管理员修订已完结考核
// 原始评审数据不动，修订写入独立的覆盖版本并记录字段级差异
func (s *AppraisalService) UpdateAdminVersion(ctx context.Context, appraisalID, actorID string, actorRoles []string, req *AdminEditRequest) (*entity.Appraisal, error) {
	if !isElevated(actorRoles) {
		return nil, forbiddenf("仅HR管理角色可修订考核结果")
	}

	appraisal, err := s.repo.FindByID(ctx, appraisalID)
	if err != nil {
		return nil, err
	}
	if appraisal.Status != entity.AppraisalStatusCompleted {
		return nil, badRequestf("仅已完结的考核可修订: %s", appraisal.Status)
	}

	now := time.Now()

	// 首次修订时以原始结果为底稿
	if appraisal.AdminEditedVersion == nil {
		appraisal.AdminEditedVersion = &entity.AdminEditedVersion{
			Reviews:       appraisal.Reviews,
			OverallScore:  appraisal.OverallScore,
			FinalComments: appraisal.FinalComments,
		}
	}
	version := appraisal.AdminEditedVersion

	var changes []entity.FieldChange
	if req.OverallScore != nil && !floatPtrEqual(version.OverallScore, req.OverallScore) {
		changes = append(changes, entity.FieldChange{
			Field:    "overall_score",
			OldValue: floatPtrValue(version.OverallScore),
			NewValue: *req.OverallScore,
		})
		version.OverallScore = req.OverallScore
	}
	if req.FinalComments != nil && version.FinalComments != *req.FinalComments {
		changes = append(changes, entity.FieldChange{
			Field:    "final_comments",
			OldValue: version.FinalComments,
			NewValue: *req.FinalComments,
		})
		version.FinalComments = *req.FinalComments
	}
	if req.Reviews != nil {
		changes = append(changes, entity.FieldChange{
			Field:    "reviews",
			OldValue: version.Reviews,
			NewValue: req.Reviews,
		})
		version.Reviews = req.Reviews
	}

	if len(changes) == 0 {
		return appraisal, nil
	}

	version.EditedBy = actorID
	version.EditedAt = now
	version.EditHistory = append(version.EditHistory, entity.AdminEdit{
		Editor:    actorID,
		Timestamp: now,
		Changes:   changes,
	})
	appraisal.IsAdminEdited = true
	appraisal.AppendHistory(entity.HistoryAdminEdit, actorID, "", now)

	if err := s.save(ctx, appraisal); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, "appraisal.admin_edit", "appraisal", appraisal.ID,
		fmt.Sprintf("修订%d个字段", len(changes)), nil)
	s.notification.Notify(ctx, appraisal.EmployeeID, entity.NotificationKindAdminEdit,
		"考核结果已修订",
		fmt.Sprintf("%s 考核结果被HR修订", appraisal.Period), "")

	return appraisal, nil
}

// BulkDelete 批量删除考核实例，仅hr_admin
func (s *AppraisalService) BulkDelete(ctx context.Context, actorID string, actorRoles []string, ids []string) (int64, error) {
	if !hasRole(actorRoles, entity.RoleHRAdmin) {
		return 0, forbiddenf("仅系统管理员可批量删除考核实例")
	}
	if len(ids) == 0 {
		return 0, badRequestf("未指定要删除的考核实例")
	}

	deleted, err := s.repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("批量删除失败: %w", err)
	}

	s.audit.Record(ctx, actorID, "appraisal.bulk_delete", "appraisal", "",
		fmt.Sprintf("批量删除%d个考核实例", deleted),
		entity.JSONB{"ids": ids})

	return deleted, nil
}

// validateResponses 校验作答与模板题目的匹配
func validateResponses(template *entity.ReviewTemplate, responses []entity.QuestionResponse) error {
	byID := make(map[string]*entity.TemplateQuestion, len(template.Questions))
	for i := range template.Questions {
		byID[template.Questions[i].ID] = &template.Questions[i]
	}

	answered := make(map[string]bool, len(responses))
	for i := range responses {
		resp := &responses[i]
		question, ok := byID[resp.QuestionID]
		if !ok {
			return badRequestf("题目不属于该模板: %s", resp.QuestionID)
		}
		if resp.Kind != question.Kind {
			return badRequestf("题目%s作答类型不匹配: %s", resp.QuestionID, resp.Kind)
		}
		switch question.Kind {
		case entity.QuestionKindRating:
			if resp.Score == nil {
				return badRequestf("打分题%s缺少分数", resp.QuestionID)
			}
			if *resp.Score < 0 || *resp.Score > question.MaxScore {
				return badRequestf("题目%s分数超出范围[0,%.1f]", resp.QuestionID, question.MaxScore)
			}
		case entity.QuestionKindMultipleChoice:
			if resp.Choice == "" {
				return badRequestf("选择题%s未选择选项", resp.QuestionID)
			}
			valid := false
			for _, option := range question.Options {
				if option == resp.Choice {
					valid = true
					break
				}
			}
			if !valid {
				return badRequestf("题目%s选项非法: %s", resp.QuestionID, resp.Choice)
			}
		case entity.QuestionKindText:
			if resp.Text == "" {
				return badRequestf("文本题%s内容为空", resp.QuestionID)
			}
		}
		answered[resp.QuestionID] = true
	}

	for i := range template.Questions {
		question := &template.Questions[i]
		if question.IsRequired && !answered[question.ID] {
			return badRequestf("必答题未作答: %s", question.ID)
		}
	}
	return nil
}

// computeReviewScore 按题目权重计算单次评审综合分
// weight为0按1计，无计分作答返回nil
func computeReviewScore(template *entity.ReviewTemplate, responses []entity.QuestionResponse) *float64 {
	byID := make(map[string]*entity.TemplateQuestion, len(template.Questions))
	for i := range template.Questions {
		byID[template.Questions[i].ID] = &template.Questions[i]
	}

	var weightedSum, weightTotal float64
	for i := range responses {
		resp := &responses[i]
		if resp.Score == nil {
			continue
		}
		question, ok := byID[resp.QuestionID]
		if !ok || question.Kind != entity.QuestionKindRating {
			continue
		}
		weight := question.Weight
		if weight == 0 {
			weight = 1
		}
		weightedSum += *resp.Score * weight
		weightTotal += weight
	}
	if weightTotal == 0 {
		return nil
	}
	score := weightedSum / weightTotal
	return &score
}

// computeFinalScore 最终综合分：各环节评审综合分的平均
func computeFinalScore(reviews entity.Reviews) *float64 {
	var sum float64
	var count int
	for i := range reviews {
		if reviews[i].OverallScore != nil {
			sum += *reviews[i].OverallScore
			count++
		}
	}
	if count == 0 {
		return nil
	}
	score := sum / float64(count)
	return &score
}

// 角色辅助

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func isElevated(roles []string) bool {
	for _, r := range roles {
		if entity.IsElevatedRole(r) {
			return true
		}
	}
	return false
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func floatPtrValue(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func displayName(appraisal *entity.Appraisal) string {
	if appraisal.Employee != nil {
		return appraisal.Employee.Name
	}
	return appraisal.EmployeeID
}
