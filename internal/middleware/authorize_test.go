package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"moradia/api/internal/models"
)

func runWithActor(t *testing.T, handler gin.HandlerFunc, actor *models.User) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != nil {
		c.Set(currentUserKey, *actor)
	}

	handler(c)
	return recorder
}

func TestRequireRolesAllowsMatchingRole(t *testing.T) {
	owner := models.User{ID: "u1", Role: models.UserRoleOwner}
	recorder := runWithActor(t, RequireRoles(models.UserRoleOwner), &owner)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestRequireRolesRejectsOtherRole(t *testing.T) {
	student := models.User{ID: "u1", Role: models.UserRoleStudent}
	recorder := runWithActor(t, RequireRoles(models.UserRoleOwner), &student)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.JSONEq(t, `{"mensagem": "Você não tem permissão para acessar este recurso."}`, recorder.Body.String())
}

func TestRequireRolesRejectsAnonymous(t *testing.T) {
	recorder := runWithActor(t, RequireRoles(models.UserRoleOwner), nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestCurrentUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := CurrentUser(c)
	assert.False(t, ok)

	c.Set(currentUserKey, models.User{ID: "u1"})
	user, ok := CurrentUser(c)
	assert.True(t, ok)
	assert.Equal(t, "u1", user.ID)
}
