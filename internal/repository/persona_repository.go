package repository

import (
	"github.com/tetherapp/tether/internal/model"
	"gorm.io/gorm"
)

// PersonaRepository 人格配置数据访问
type PersonaRepository struct {
	db *gorm.DB
}

// NewPersonaRepository 创建人格仓库
func NewPersonaRepository(db *gorm.DB) *PersonaRepository {
	return &PersonaRepository{db: db}
}

// Create 创建人格
func (r *PersonaRepository) Create(p *model.Persona) error {
	return r.db.Create(p).Error
}

// GetByName 按名称获取人格
func (r *PersonaRepository) GetByName(name string) (*model.Persona, error) {
	var p model.Persona
	err := r.db.Where("name = ? AND is_active = ?", name, true).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActive 列出启用的人格
func (r *PersonaRepository) ListActive() ([]*model.Persona, error) {
	var personas []*model.Persona
	err := r.db.Where("is_active = ?", true).Order("name ASC").Find(&personas).Error
	return personas, err
}

// Update 更新人格
func (r *PersonaRepository) Update(p *model.Persona) error {
	return r.db.Save(p).Error
}
