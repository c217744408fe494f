package http

import (
	"github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/discord"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/dynamo"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/email"
	jwtinfra "github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/jwt"
	redisinfra "github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/redis"
	s3infra "github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/s3"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/snspush"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/pkg/ratelimit"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	VerificationRepo *dynamo.VerificationRepo
	NotificationRepo *dynamo.NotificationRepo
	FailedRepo       *dynamo.FailedNotificationRepo
	Cache            *redisinfra.Cache
	Archive          *s3infra.Archive
	Mailer           email.Mailer
	BatchMailer      *email.BatchSender
	DiscordSender    discord.Sender
	PushSender       snspush.Sender
	SendLimiter      *ratelimit.Limiter
	JWTProvider      *jwtinfra.Provider
}
