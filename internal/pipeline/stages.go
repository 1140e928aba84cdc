package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/namishanaseem-clustox/ATS/internal/database"
)

// StageRef 是职位 pipeline_config 中的一个阶段条目。
// 这是应用实际流转所依据的副本，与模板中的阶段定义行解耦。
type StageRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
	Color string `json:"color,omitempty"`
}

// fallbackStageID 在新阶段集合为空时兜底使用。
const fallbackStageID = "new"

// DefaultStageNames 是标准招聘管线的阶段名。
var DefaultStageNames = []string{
	"New Candidates",
	"Shortlisted",
	"Technical Review",
	"Interview Round 1",
	"Interview Round 2",
	"Offer",
	"Hired",
	"Rejected",
}

var defaultStageIDs = []string{
	"new",
	"shortlisted",
	"technical_review",
	"interview_round_1",
	"interview_round_2",
	"offer",
	"hired",
	"rejected",
}

// DefaultConfig 返回未绑定模板的职位所使用的标准阶段集合。
func DefaultConfig() []StageRef {
	refs := make([]StageRef, 0, len(DefaultStageNames))
	for i, name := range DefaultStageNames {
		refs = append(refs, StageRef{
			ID:    defaultStageIDs[i],
			Name:  name,
			Order: i,
		})
	}
	return refs
}

// DecodeConfig 解析职位上的 pipeline_config JSONB。
func DecodeConfig(raw datatypes.JSON) ([]StageRef, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var refs []StageRef
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, fmt.Errorf("decode pipeline config: %w", err)
	}
	return refs, nil
}

// EncodeConfig 序列化阶段集合为 JSONB。
func EncodeConfig(refs []StageRef) (datatypes.JSON, error) {
	data, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("encode pipeline config: %w", err)
	}
	return datatypes.JSON(data), nil
}

// StageRefsFromRows 将模板阶段行转换为配置条目，按 Order 排序。
// 条目 ID 使用阶段行主键，保证同一模板重复同步时 ID 稳定。
func StageRefsFromRows(rows []database.PipelineStage) []StageRef {
	sorted := make([]database.PipelineStage, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	refs := make([]StageRef, 0, len(sorted))
	for i, row := range sorted {
		refs = append(refs, StageRef{
			ID:    strconv.FormatUint(uint64(row.ID), 10),
			Name:  row.Name,
			Order: i,
			Color: row.Color,
		})
	}
	return refs
}

// NormalizeStageList 校验调用方直接提交的阶段列表：
// 名称必填，缺失的 ID 就地生成，Order 规整为 0 起连续值。
func NormalizeStageList(refs []StageRef) ([]StageRef, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("stage list must not be empty")
	}

	sorted := make([]StageRef, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	for i := range sorted {
		if sorted[i].Name == "" {
			return nil, fmt.Errorf("stage at position %d has no name", i)
		}
		if sorted[i].ID == "" {
			sorted[i].ID = uuid.NewString()
		}
		sorted[i].Order = i
	}
	return sorted, nil
}
