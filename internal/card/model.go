package card

import (
	"errors"
	"time"
)

// ErrDuplicateSlug возвращают репозитории при проигранной гонке за
// уникальный slug.
var ErrDuplicateSlug = errors.New("slug already taken")

// Card — визитка. Контент свободный, квота считает только количество.
type Card struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"owner_id"`
	Slug        string            `json:"slug"`
	DisplayName string            `json:"display_name"`
	Title       string            `json:"title"`
	Company     string            `json:"company"`
	TemplateID  string            `json:"template_id"`
	Links       map[string]string `json:"links,omitempty"`
	Published   bool              `json:"published"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Draft — поля, которые задаёт владелец при создании и обновлении.
type Draft struct {
	Slug        string            `json:"slug" validate:"required,min=3,max=64,excludesall=0x20/?#"`
	DisplayName string            `json:"display_name" validate:"required,max=80"`
	Title       string            `json:"title" validate:"max=120"`
	Company     string            `json:"company" validate:"max=120"`
	TemplateID  string            `json:"template_id" validate:"required"`
	Links       map[string]string `json:"links" validate:"omitempty,max=20,dive,keys,max=40,endkeys,url"`
	Published   bool              `json:"published"`
}
