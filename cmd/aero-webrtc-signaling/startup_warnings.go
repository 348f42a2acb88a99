package main

import (
	"log/slog"
	"slices"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/relay"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.AuthMode == config.AuthModeNone {
		logger.Warn("startup security warning: AUTH_MODE=none disables authentication",
			"warning_code", "auth_mode_none",
			"auth_mode", cfg.AuthMode,
			"mode", cfg.Mode,
		)
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode != config.ModeProd {
		return
	}

	if cfg.DisconnectScope == relay.DisconnectScopeAll {
		logger.Warn("startup security warning: DISCONNECT_SCOPE=all announces every disconnect to every connection (leaks connection ids across rooms)",
			"warning_code", "disconnect_scope_all_in_prod",
			"disconnect_scope", cfg.DisconnectScope,
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxRoomMembers <= 0 {
		logger.Warn("startup security warning: MAX_ROOM_MEMBERS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_room_members_unlimited_in_prod",
			"max_room_members", cfg.MaxRoomMembers,
			"mode", cfg.Mode,
		)
	}

	if cfg.ExposeRooms {
		logger.Warn("startup security warning: GET /rooms is exposed while --mode=prod (lists every room id)",
			"warning_code", "rooms_endpoint_in_prod",
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxConnectsPerIPPerSecond <= 0 {
		logger.Warn("startup security warning: MAX_CONNECTS_PER_IP_PER_SECOND is unset/0 (unlimited) while --mode=prod",
			"warning_code", "connect_rate_unlimited_in_prod",
			"mode", cfg.Mode,
		)
	}
}
