package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/relay"
)

var errRoomsDisabled = errors.New("room listing is disabled on this relay (dev mode or --expose-rooms)")

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the relay's active rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(os.LookupEnv)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		rooms, err := fetchRooms(ctx, http.DefaultClient, s)
		if err != nil {
			return err
		}
		fmt.Println(roomsTableView(rooms))
		return nil
	},
}

func fetchRooms(ctx context.Context, client *http.Client, s settings) ([]relay.RoomInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpointURL("/rooms").String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errRoomsDisabled
	default:
		return nil, fmt.Errorf("GET /rooms: %s", resp.Status)
	}

	var rooms []relay.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode /rooms: %w", err)
	}
	return rooms, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}
