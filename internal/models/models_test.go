package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidDepartment(t *testing.T) {
	assert.True(t, IsValidDepartment(DepartmentHR))
	assert.True(t, IsValidDepartment(DepartmentProgress))
	assert.False(t, IsValidDepartment(Department("Marketing")))
	assert.False(t, IsValidDepartment(Department("")))
}

func TestAllDepartmentsCoversEnum(t *testing.T) {
	all := AllDepartments()
	assert.Len(t, all, 6)
	assert.Contains(t, all, DepartmentGeneral)
	assert.Contains(t, all, DepartmentProgress)
}
