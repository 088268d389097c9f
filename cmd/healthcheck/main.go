// main.go
//
// Draft identity and hybrid persistence service for event proposals
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of proposaldb.
// proposaldb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// proposaldb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with proposaldb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/localnerve/proposaldb/internal/config"
	"github.com/localnerve/proposaldb/internal/database"
	"github.com/localnerve/proposaldb/internal/documents"
	"github.com/localnerve/proposaldb/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	quiet := zap.NewNop()

	db, err := database.Connect(cfg, quiet)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, mdb, err := database.ConnectMongo(ctx, cfg, quiet)
	if err != nil {
		log.Fatalf("Failed to connect to document store: %v", err)
	}
	defer database.DisconnectMongo(client)

	attachments, err := documents.NewMongoStore(ctx, mdb, quiet)
	if err != nil {
		log.Fatalf("Failed to open attachment store: %v", err)
	}

	result := services.NewHealthChecker(cfg, db, attachments, quiet).Check(ctx)

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal health check result: %v", err)
	}
	fmt.Println(string(output))

	if !result.Healthy() {
		os.Exit(1)
	}
}
