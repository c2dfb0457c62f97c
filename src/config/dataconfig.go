package config

import (
	"sort"
	"strings"

	"RailPunctuality/src/utils"
)

// 规范列名
const (
	ColDate        = "Date"
	ColDeparture   = "Departure"
	ColArrival     = "Arrival"
	ColStation     = "Station"
	ColProgrammed  = "Programmed"
	ColOperated    = "Operated"
	ColCancelled   = "Cancelled"
	ColDelayed     = "Delayed"
	ColPunctuality = "PunctualityRate"
	ColOnTime      = "OnTimePerDelayed"
	ColComment     = "Comment"
	ColDataset     = "Dataset"
)

// 标签修正动作
const ActionSwapEndpoints = "swap_endpoints"

// StationProfile 单个数据集的固定属性
type StationProfile struct {
	Station   string `json:"station" yaml:"station"`     // 城市
	Departure string `json:"departure" yaml:"departure"` // 缺少出发列时使用
	Collapse  bool   `json:"collapse" yaml:"collapse"`   // 是否按 (Date, Departure) 预合并
}

// CorrectionRule 数据驱动的标签修正规则
type CorrectionRule struct {
	Name     string   `json:"name" yaml:"name"`
	Datasets []string `json:"datasets" yaml:"datasets"` // 数据集键，匹配同名或 key_ 前缀
	Column   string   `json:"column" yaml:"column"`     // 触发列(规范列名)
	Contains string   `json:"contains" yaml:"contains"` // 触发子串，不区分大小写
	Action   string   `json:"action" yaml:"action"`
}

// DataConfig 数据相关配置：列映射、站点属性与修正规则
type DataConfig struct {
	Columns          map[string][]string       `json:"columns" yaml:"columns"` // 规范列名 -> 别名，首个别名为展示名
	StationKeywords  []string                  `json:"station_keywords" yaml:"station_keywords"`
	Blacklist        []string                  `json:"blacklist" yaml:"blacklist"`
	Required         []string                  `json:"required" yaml:"required"`
	Profiles         map[string]StationProfile `json:"profiles" yaml:"profiles"`
	Corrections      []CorrectionRule          `json:"corrections" yaml:"corrections"`
	DefaultDeparture string                    `json:"default_departure" yaml:"default_departure"`
}

// DefaultDataConfig 返回 Occitanie 区域数据集的默认配置
func DefaultDataConfig() *DataConfig {
	return &DataConfig{
		Columns: map[string][]string{
			ColDate:        {"Date", "Mois", "Période"},
			ColDeparture:   {"Départ", "Gare de départ", "Origine"},
			ColArrival:     {"Arrivée", "Gare d'arrivée", "Destination"},
			ColProgrammed:  {"Nombre de trains programmés", "Trains programmés"},
			ColOperated:    {"Nombre de trains ayant circulé", "Trains ayant circulé"},
			ColCancelled:   {"Nombre de trains annulés", "Trains annulés"},
			ColDelayed:     {"Nombre de trains en retard à l'arrivée", "Trains en retard"},
			ColPunctuality: {"Taux de régularité", "Régularité"},
			ColOnTime:      {"Nombre de trains à l'heure pour un train en retard à l'arrivée"},
			ColComment:     {"Commentaires", "Commentaire"},
			ColStation:     {"Ville"},
		},
		StationKeywords: []string{"ville", "gare"},
		Blacklist:       []string{"code uic", "non voyageurs", "code postal", "total"},
		Required:        []string{ColDelayed, ColCancelled, ColProgrammed, ColOperated, ColDate},
		Profiles: map[string]StationProfile{
			"albi":            {Station: "Albi", Departure: "Paris-Austerlitz"},
			"bayonne":         {Station: "Bayonne", Departure: "Toulouse-Matabiau"},
			"beziers":         {Station: "Beziers", Departure: "Clermont-Ferrand"},
			"cerbere":         {Station: "Cerbere", Departure: "Paris-Austerlitz"},
			"latour_de_carol": {Station: "Latour de Carol", Departure: "Paris-Austerlitz"},
			"nimes":           {Station: "Nîmes", Departure: "Clermont-Ferrand"},
			"tarbes":          {Station: "Tarbes", Departure: "Paris-Austerlitz"},
			"toulouse":        {Station: "Toulouse", Collapse: true},
		},
		Corrections: []CorrectionRule{
			{
				Name:     "tarbes_departure",
				Datasets: []string{"tarbes"},
				Column:   ColDeparture,
				Contains: "Tarbes",
				Action:   ActionSwapEndpoints,
			},
			{
				Name:     "paris_arrival",
				Datasets: []string{"albi", "cerbere", "latour_de_carol"},
				Column:   ColArrival,
				Contains: "Paris",
				Action:   ActionSwapEndpoints,
			},
		},
		DefaultDeparture: "Inconnu",
	}
}

// merge 用默认值补全未配置的字段
func (dc *DataConfig) merge(def *DataConfig) *DataConfig {
	if len(dc.Columns) == 0 {
		dc.Columns = def.Columns
	}
	if len(dc.StationKeywords) == 0 {
		dc.StationKeywords = def.StationKeywords
	}
	if dc.Blacklist == nil {
		dc.Blacklist = def.Blacklist
	}
	if len(dc.Required) == 0 {
		dc.Required = def.Required
	}
	if dc.Profiles == nil {
		dc.Profiles = def.Profiles
	}
	if dc.Corrections == nil {
		dc.Corrections = def.Corrections
	}
	if dc.DefaultDeparture == "" {
		dc.DefaultDeparture = def.DefaultDeparture
	}
	return dc
}

// MatchDataset 判断数据集名称是否匹配键: 完全相同或以 key_ 开头
func MatchDataset(key, dataset string) bool {
	key = strings.ToLower(key)
	dataset = strings.ToLower(dataset)
	return dataset == key || strings.HasPrefix(dataset, key+"_")
}

// GetProfile 查找数据集对应的站点属性，优先最长的键
func (dc *DataConfig) GetProfile(dataset string) (StationProfile, bool) {
	mu.RLock()
	defer mu.RUnlock()

	var (
		best    StationProfile
		bestLen = -1
	)
	for key, p := range dc.Profiles {
		if MatchDataset(key, dataset) && len(key) > bestLen {
			best, bestLen = p, len(key)
		}
	}
	return best, bestLen >= 0
}

// SetProfile 设置数据集的站点属性
func (dc *DataConfig) SetProfile(key string, p StationProfile) {
	mu.Lock()
	defer mu.Unlock()
	if dc.Profiles == nil {
		dc.Profiles = map[string]StationProfile{}
	}
	dc.Profiles[key] = p
}

// GetAliases 获取规范列名的别名列表
func (dc *DataConfig) GetAliases(canonical string) []string {
	mu.RLock()
	defer mu.RUnlock()
	return dc.Columns[canonical]
}

// DisplayName 规范列名在源文件中的常见写法
func (dc *DataConfig) DisplayName(canonical string) string {
	if aliases := dc.GetAliases(canonical); len(aliases) > 0 {
		return aliases[0]
	}
	return canonical
}

// Canonical 将源列名映射为规范列名，比较时忽略大小写与重音
func (dc *DataConfig) Canonical(name string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()

	key := utils.FoldKey(name)
	canonicals := make([]string, 0, len(dc.Columns))
	for c := range dc.Columns {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)

	for _, c := range canonicals {
		if utils.FoldKey(c) == key {
			return c, true
		}
		for _, alias := range dc.Columns[c] {
			if utils.FoldKey(alias) == key {
				return c, true
			}
		}
	}
	return "", false
}

// MissingRequired 返回 names 中缺少的必需列(展示名)，顺序与 Required 一致
func (dc *DataConfig) MissingRequired(names []string) []string {
	present := map[string]bool{}
	for _, n := range names {
		if c, ok := dc.Canonical(n); ok {
			present[c] = true
		}
	}
	var missing []string
	for _, req := range dc.Required {
		if !present[req] {
			missing = append(missing, dc.DisplayName(req))
		}
	}
	return missing
}
