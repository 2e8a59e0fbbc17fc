package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/billsync/internal/app/api/server"
	"github.com/fatflowers/billsync/internal/app/service/event_dedupe"
	notificationhandler "github.com/fatflowers/billsync/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/billsync/internal/app/service/notification_log"
	"github.com/fatflowers/billsync/internal/app/service/profile"
	"github.com/fatflowers/billsync/internal/app/service/statistics"
	"github.com/fatflowers/billsync/internal/app/service/subscription"
	"github.com/fatflowers/billsync/internal/platform/db"
	"github.com/fatflowers/billsync/internal/platform/redisclient"
	"github.com/fatflowers/billsync/pkg/config"
	"github.com/fatflowers/billsync/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 35 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	redisclient.Module,
	profile.Module,
	subscription.Module,
	notificationlog.Module,
	event_dedupe.Module,
	statistics.Module,
	notificationhandler.Module,
	server.Module,
)
