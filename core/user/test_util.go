package user

import (
	"github.com/trezcool/maoni/core"
)

// NewServiceMock returns a Service wired for tests; mails go through the
// provided (usually synchronous) EmailService.
func NewServiceMock(db core.DB, repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}
