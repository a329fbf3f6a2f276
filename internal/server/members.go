package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	memberdomain "github.com/smallbiznis/meridian/internal/member/domain"
)

func (s *Server) ListMembers(c *gin.Context) {
	filter := memberdomain.ListMemberFilter{
		Tier:   strings.TrimSpace(c.Query("tier")),
		Status: memberdomain.MemberStatus(strings.TrimSpace(c.Query("status"))),
	}

	resp, err := s.memberSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMemberByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.memberSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateMember(c *gin.Context) {
	var req memberdomain.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.Tier = strings.TrimSpace(req.Tier)

	resp, err := s.memberSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
