package store

import (
	"encoding/json"

	"GlassRain/backend/go/internal/models"
	"GlassRain/backend/go/pkg/circuitbreaker"

	"gorm.io/datatypes"
)

// --- Property Data ---

// GetAddress 通过 ID 查找地址。数据库不可用或记录不存在时返回 nil，
// 调用方（后台分析任务）据此降级而不是失败。
func (s *Store) GetAddress(id uint) *models.Address {
	if s.DB == nil {
		return nil
	}
	var addr models.Address
	err := s.breaker.Do(func() error {
		return s.DB.First(&addr, id).Error
	})
	if err != nil {
		if err != circuitbreaker.ErrOpen {
			s.log.WithErr(err).Warn("查询地址失败")
		}
		return nil
	}
	return &addr
}

// SaveInsight 持久化一条分析结论。payload 会被序列化为 JSON 存储。
func (s *Store) SaveInsight(addressID uint, kind string, payload interface{}) error {
	if s.DB == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	insight := models.PropertyInsight{
		AddressID: addressID,
		Kind:      kind,
		Payload:   datatypes.JSON(raw),
	}
	return s.breaker.Do(func() error {
		return s.DB.Create(&insight).Error
	})
}

// ListInsights 返回某个地址的全部分析结论，按创建时间倒序。
func (s *Store) ListInsights(addressID uint) []models.PropertyInsight {
	if s.DB == nil {
		return nil
	}
	var insights []models.PropertyInsight
	err := s.breaker.Do(func() error {
		return s.DB.Where("address_id = ?", addressID).Order("created_at DESC").Find(&insights).Error
	})
	if err != nil {
		if err != circuitbreaker.ErrOpen {
			s.log.WithErr(err).Warn("查询分析结论失败")
		}
		return nil
	}
	return insights
}

// ListServiceOfferings 返回启用中的服务项目，category 为空时不过滤分类。
func (s *Store) ListServiceOfferings(category string) []models.ServiceOffering {
	if s.DB == nil {
		return nil
	}
	var offerings []models.ServiceOffering
	err := s.breaker.Do(func() error {
		q := s.DB.Where("active = ?", true)
		if category != "" {
			q = q.Where("category = ?", category)
		}
		return q.Order("name").Find(&offerings).Error
	})
	if err != nil {
		if err != circuitbreaker.ErrOpen {
			s.log.WithErr(err).Warn("查询服务项目失败")
		}
		return nil
	}
	return offerings
}
