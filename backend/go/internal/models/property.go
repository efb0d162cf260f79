package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Address 代表一个已登记的房产地址。
type Address struct {
	gorm.Model

	UserID    string `gorm:"index;size:64"` // 地址所属用户ID
	Line1     string `gorm:"size:255;not null"`
	City      string `gorm:"size:128"`
	State     string `gorm:"size:64"`
	Zip       string `gorm:"size:16"`
	Latitude  float64
	Longitude float64
}

// PropertyInsight 存储一次房产分析任务产出的结论。
type PropertyInsight struct {
	gorm.Model

	AddressID uint           `gorm:"index;not null"` // 关联的地址ID
	Kind      string         `gorm:"size:64;not null"` // 分析类型，例如 "property_analysis", "seasonal_check"
	Payload   datatypes.JSON // 分析结果的结构化内容
}

// ServiceOffering 代表一项可预约的家庭服务。
type ServiceOffering struct {
	gorm.Model

	Name        string  `gorm:"size:255;not null"`
	Category    string  `gorm:"size:128;index"`
	Description string  `gorm:"size:1024"`
	BasePrice   float64 // 基础报价 (美元)
	Active      bool    `gorm:"default:true"`
}

func (Address) TableName() string {
	return "addresses"
}

func (PropertyInsight) TableName() string {
	return "property_insights"
}

func (ServiceOffering) TableName() string {
	return "service_offerings"
}
