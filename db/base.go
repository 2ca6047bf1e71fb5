package db

import (
	"time"
)

type IDBase struct {
	ID int `gorm:"primary_key"`
}

type CrudBase struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}
