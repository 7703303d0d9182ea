package service

import (
	"github.com/dom/pickup-queue/internal/config"
	"github.com/dom/pickup-queue/internal/queue"
	"github.com/dom/pickup-queue/internal/repository"
)

type Services struct {
	Auth  *AdminAuthService
	Queue *QueueService
}

func NewServices(repos *repository.Repositories, cfg *config.Config) *Services {
	return &Services{
		Auth:  NewAdminAuthService(cfg),
		Queue: NewQueueService(repos, queue.New()),
	}
}
