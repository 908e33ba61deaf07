package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/alanoney1-alt/UpTend-sub013/geo"
	"github.com/alanoney1-alt/UpTend-sub013/hub"
	"github.com/alanoney1-alt/UpTend-sub013/id"
)

// arrivalGeofenceMiles is how close a pro's live position must be to
// the job site before the server records an automatic arrival.
const arrivalGeofenceMiles = 0.1

// clientMessage is the client→server vocabulary: join-job, leave-job,
// location_update, customer_location_update.
type clientMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId,omitempty"`
	Lat   float64 `json:"lat,omitempty"`
	Lng   float64 `json:"lng,omitempty"`
}

// serveWS upgrades the connection and runs its read loop. Query
// parameters select the initial room: ?jobId=...&userId=...&role=pro.
func (a *API) serveWS(c *gin.Context) {
	userID, err := id.Parse(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	role := c.Query("role")
	jobID := c.Query("jobId")

	netConn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
	if err != nil {
		a.logger.Warn("ws upgrade failed", slog.Any("error", err))
		return
	}

	conn := hub.NewWSConn(id.NewConnID().String(), netConn)
	a.hub.Register(conn)
	a.hub.Join(hub.RoomGlobal, conn)
	if role == RolePro {
		a.hub.Join(hub.RoomPro(userID.String()), conn)
	}
	if jobID != "" {
		a.hub.Join(hub.RoomJob(jobID), conn)
	}

	ack, _ := json.Marshal(hub.NewEnvelope(hub.TypeConnected, hub.ConnectedData{
		ConnID: conn.ID(),
		Room:   jobID,
	}))
	if err := conn.Send(ack); err != nil {
		a.hub.LeaveAll(conn.ID())
		return
	}

	go a.readLoop(conn, netConn, userID, role)
}

func (a *API) readLoop(conn *hub.WSConn, netConn net.Conn, userID id.ID, role string) {
	defer a.hub.LeaveAll(conn.ID())

	for {
		data, op, err := wsutil.ReadClientData(netConn)
		if err != nil {
			return
		}
		conn.Touch()
		if op != ws.OpText {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			a.logger.Warn("ws: bad client message", slog.String("conn_id", conn.ID()))
			continue
		}
		a.handleClientMessage(conn, userID, role, msg)
	}
}

func (a *API) handleClientMessage(conn *hub.WSConn, userID id.ID, role string, msg clientMessage) {
	switch msg.Type {
	case "join-job":
		if msg.JobID != "" {
			a.hub.Join(hub.RoomJob(msg.JobID), conn)
		}
	case "leave-job":
		if msg.JobID != "" {
			a.hub.Leave(hub.RoomJob(msg.JobID), conn.ID())
		}
	case "location_update":
		if role == RolePro {
			a.proLocationUpdate(conn, userID, msg)
		}
	case "customer_location_update":
		if msg.JobID != "" {
			a.hub.Broadcast(hub.RoomJob(msg.JobID),
				hub.NewEnvelope(hub.TypeCustomerLocationUpdate, hub.CustomerLocationUpdateData{
					JobID: msg.JobID,
					Lat:   msg.Lat,
					Lng:   msg.Lng,
				}), conn.ID())
		}
	default:
		a.logger.Debug("ws: unknown message type", slog.String("type", msg.Type))
	}
}

// proLocationUpdate persists the heartbeat position, relays it to the
// job room, and records an automatic arrival once the pro enters the
// geofence around the job site.
func (a *API) proLocationUpdate(conn *hub.WSConn, proID id.ID, msg clientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.pros.UpdateLocation(ctx, proID, msg.Lat, msg.Lng, time.Now().UTC()); err != nil {
		a.logger.Warn("ws: location persist failed",
			slog.String("pro_id", proID.String()),
			slog.Any("error", err))
	}
	if msg.JobID == "" {
		return
	}

	jobID, err := id.Parse(msg.JobID)
	if err != nil {
		return
	}
	j, err := a.eng.GetJob(ctx, jobID)
	if err != nil {
		return
	}

	at := geo.Point{Lat: msg.Lat, Lng: msg.Lng}
	site := geo.Point{Lat: j.PickupLat, Lng: j.PickupLng}
	var distance float64
	if !site.Zero() {
		distance = geo.Haversine(at, site)
	}

	a.hub.Broadcast(hub.RoomJob(msg.JobID),
		hub.NewEnvelope(hub.TypeLocationUpdated, hub.LocationUpdatedData{
			JobID:         msg.JobID,
			ProID:         proID.String(),
			Lat:           msg.Lat,
			Lng:           msg.Lng,
			DistanceMiles: distance,
		}), conn.ID())

	if !site.Zero() && distance <= arrivalGeofenceMiles && j.AssignedProID.Equal(proID) && j.ArrivedAt == nil {
		if _, err := a.eng.CheckIn(ctx, jobID, proID, at); err != nil {
			a.logger.Debug("ws: geofence check-in skipped",
				slog.String("job_id", msg.JobID),
				slog.Any("error", err))
		}
	}
}
