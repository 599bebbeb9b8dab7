package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
)

// UserService 员工服务
type UserService struct {
	repo *repository.UserRepository
}

// NewUserService 创建员工服务
func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// List 查询员工列表
func (s *UserService) List(ctx context.Context, page, pageSize int, filters map[string]string) (map[string]interface{}, error) {
	users, total, err := s.repo.FindAll(ctx, page, pageSize, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"users": users,
		"total": total,
	}, nil
}

// Get 获取员工详情
func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateUserRequest 更新员工请求
type UpdateUserRequest struct {
	Name         *string   `json:"name"`
	Email        *string   `json:"email"`
	SupervisorID *string   `json:"supervisor_id"`
	DepartmentID *string   `json:"department_id"`
	Roles        *[]string `json:"roles"`
	Status       *string   `json:"status"`
}

// 可分配的系统角色
var validRoles = map[string]bool{
	entity.RoleEmployee:   true,
	entity.RoleSupervisor: true,
	entity.RoleHR:         true,
	entity.RoleCommittee:  true,
	entity.RoleHRAdmin:    true,
}

// Update 更新员工信息（上级/部门/角色由hr_admin维护）
func (s *UserService) Update(ctx context.Context, id string, req *UpdateUserRequest) (*entity.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.SupervisorID != nil {
		if *req.SupervisorID == id {
			return nil, badRequestf("员工不能作为自己的上级")
		}
		if *req.SupervisorID != "" {
			if _, err := s.repo.FindByID(ctx, *req.SupervisorID); err != nil {
				if err == repository.ErrNotFound {
					return nil, badRequestf("上级不存在: %s", *req.SupervisorID)
				}
				return nil, err
			}
		}
		user.SupervisorID = *req.SupervisorID
	}
	if req.DepartmentID != nil {
		user.DepartmentID = *req.DepartmentID
	}
	if req.Roles != nil {
		for _, role := range *req.Roles {
			if !validRoles[role] {
				return nil, badRequestf("未知角色: %s", role)
			}
		}
		user.Roles = entity.StringList(*req.Roles)
	}
	if req.Status != nil {
		user.Status = *req.Status
	}
	user.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("更新员工失败: %w", err)
	}

	return user, nil
}
