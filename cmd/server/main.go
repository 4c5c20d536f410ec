package main

import (
	_ "github.com/squadlink/voice-backend/docs"
	"github.com/squadlink/voice-backend/internal/bootstrap"
)

// @title Squad Voice Backend API
// @version 1.0.0
// @description Tactical squad voice chat backend with room, team and role based audio routing

// @host api.squadlink.example.com
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	bootstrap.Run()
}
