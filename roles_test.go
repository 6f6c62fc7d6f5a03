package library_test

import (
	"testing"

	"github.com/goliatone/go-library"
	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   library.UserRole
		wantOK bool
	}{
		{"", library.RoleMember, true},
		{"member", library.RoleMember, true},
		{" Admin ", library.RoleAdmin, true},
		{"owner", library.UserRole("owner"), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := library.ParseRole(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserRole_IsAtLeast(t *testing.T) {
	assert.True(t, library.RoleAdmin.IsAtLeast(library.RoleMember))
	assert.True(t, library.RoleMember.IsAtLeast(library.RoleMember))
	assert.False(t, library.RoleMember.IsAtLeast(library.RoleAdmin))
	assert.False(t, library.UserRole("guest").IsAtLeast(library.RoleMember))
	assert.Equal(t, []library.UserRole{library.RoleMember, library.RoleAdmin}, library.GetAllRoles())
}

func TestParseUserID(t *testing.T) {
	claims := &library.JWTClaims{UID: "12"}
	id, err := library.ParseUserID(claims)
	assert.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = library.ParseUserID(&library.JWTClaims{UID: "abc"})
	assert.ErrorIs(t, err, library.ErrUnableToMapClaims)

	_, err = library.ParseUserID(&library.JWTClaims{UID: "0"})
	assert.ErrorIs(t, err, library.ErrUnableToMapClaims)

	_, err = library.ParseUserID(nil)
	assert.ErrorIs(t, err, library.ErrUnableToMapClaims)
}
