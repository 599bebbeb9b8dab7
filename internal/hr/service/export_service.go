package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
	"github.com/xuri/excelize/v2"
)

// ExportService 考核结果导出服务
type ExportService struct {
	appraisalRepo *repository.AppraisalRepository
	periodRepo    *repository.PeriodRepository
	templateRepo  *repository.TemplateRepository
}

// NewExportService 创建导出服务
func NewExportService(appraisalRepo *repository.AppraisalRepository, periodRepo *repository.PeriodRepository, templateRepo *repository.TemplateRepository) *ExportService {
	return &ExportService{
		appraisalRepo: appraisalRepo,
		periodRepo:    periodRepo,
		templateRepo:  templateRepo,
	}
}

var appraisalExportHeaders = []string{
	"员工", "邮箱", "部门", "周期", "状态", "当前环节", "综合分", "最终评语", "HR修订", "发起时间", "更新时间",
}

// ExportPeriodResults 导出某周期全部考核结果为xlsx
// 存在管理员修订版本时导出修订后的分数与评语
func (s *ExportService) ExportPeriodResults(ctx context.Context, periodLabel string) (*excelize.File, string, error) {
	if _, err := s.periodRepo.FindByLabel(ctx, periodLabel); err != nil {
		if err == repository.ErrNotFound {
			return nil, "", badRequestf("周期不存在: %s", periodLabel)
		}
		return nil, "", err
	}

	appraisals, err := s.appraisalRepo.FindByPeriod(ctx, periodLabel)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "考核结果"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗 + 底色
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range appraisalExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for rowIdx := range appraisals {
		a := &appraisals[rowIdx]
		row := rowIdx + 2

		name, email, department := "", "", ""
		if a.Employee != nil {
			name = a.Employee.Name
			email = a.Employee.Email
			if a.Employee.Department != nil {
				department = a.Employee.Department.Name
			}
		}

		score := a.OverallScore
		comments := a.FinalComments
		edited := "否"
		if a.IsAdminEdited && a.AdminEditedVersion != nil {
			edited = "是"
			if a.AdminEditedVersion.OverallScore != nil {
				score = a.AdminEditedVersion.OverallScore
			}
			if a.AdminEditedVersion.FinalComments != "" {
				comments = a.AdminEditedVersion.FinalComments
			}
		}

		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), name)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), email)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), department)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), a.Period)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), statusLabel(a.Status))
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), a.CurrentStep+1)
		if score != nil {
			f.SetCellValue(sheet, fmt.Sprintf("G%d", row), *score)
		}
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), comments)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), edited)
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), a.CreatedAt.Format("2006-01-02 15:04"))
		f.SetCellValue(sheet, fmt.Sprintf("K%d", row), a.UpdatedAt.Format("2006-01-02 15:04"))
	}

	// 底部汇总行
	summaryRow := len(appraisals) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	completed := 0
	for i := range appraisals {
		if appraisals[i].Status == entity.AppraisalStatusCompleted {
			completed++
		}
	}
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "汇总")
	f.SetCellValue(sheet, fmt.Sprintf("C%d", summaryRow),
		fmt.Sprintf("共%d人，已完结%d人", len(appraisals), completed))
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("K%d", summaryRow), summaryStyle)

	// 列宽
	colWidths := []float64{12, 24, 14, 10, 14, 8, 8, 30, 8, 18, 18}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("考核结果_%s.xlsx", periodLabel)
	return f, filename, nil
}

// statusLabel 状态中文标签
func statusLabel(status string) string {
	switch status {
	case entity.AppraisalStatusSetup:
		return "待启动"
	case entity.AppraisalStatusInProgress:
		return "进行中"
	case entity.AppraisalStatusPendingEmployeeReview:
		return "待员工确认"
	case entity.AppraisalStatusCompleted:
		return "已完结"
	case entity.AppraisalStatusCancelled:
		return "已取消"
	default:
		return status
	}
}
