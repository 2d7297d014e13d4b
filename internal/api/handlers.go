package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sudankdk/runbox/internal/executor"
	"github.com/sudankdk/runbox/internal/languages"
	"github.com/sudankdk/runbox/internal/model"
)

type ExecuteRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input"`
}

type ExecuteResponse struct {
	Output string `json:"output"`
}

type LanguageInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

func (s *Server) executeHandler(c *fiber.Ctx) error {
	var req ExecuteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	// a client that goes away does not stop the submission; the environment
	// still runs to its limits and is cleaned up
	ctx := context.WithoutCancel(c.UserContext())
	res, err := s.exec.Execute(ctx, model.Submission{
		Code:     req.Code,
		Language: req.Language,
		Stdin:    req.Input,
	})
	if err != nil {
		return s.executeError(c, req.Language, err)
	}
	return c.JSON(ExecuteResponse{Output: res.Output})
}

func (s *Server) executeError(c *fiber.Ctx, lang string, err error) error {
	switch {
	case errors.Is(err, languages.ErrUnsupportedLanguage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, executor.ErrBusy):
		return fiber.NewError(fiber.StatusServiceUnavailable, "execution capacity exhausted, retry later")
	}

	s.log.Error("execution failed",
		zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		zap.String("language", lang),
		zap.Error(err))
	switch {
	case errors.Is(err, executor.ErrProvisioning):
		return fiber.NewError(fiber.StatusInternalServerError, "failed to prepare execution environment")
	case errors.Is(err, executor.ErrStaging):
		return fiber.NewError(fiber.StatusInternalServerError, "failed to stage submission")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to execute code")
	}
}

func (s *Server) languagesHandler(c *fiber.Ctx) error {
	langs := s.langs.List()
	out := make([]LanguageInfo, 0, len(langs))
	for _, l := range langs {
		out = append(out, LanguageInfo{ID: l.ID, Name: l.Name, Aliases: l.Aliases})
	}
	return c.JSON(out)
}

func methodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, fiber.MethodPost)
	return c.Status(fiber.StatusMethodNotAllowed).SendString(fmt.Sprintf("Method %s Not Allowed", c.Method()))
}
