package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/radiolink/radiolink/internal/models"
	"github.com/radiolink/radiolink/pkg/radio"
)

const (
	maxReceiveWait = 30 * time.Second
	maxScanTime    = 10 * time.Second
	maxTxWait      = 30 * time.Second
)

// ========== Power ==========

// HandleGetPowerState returns the current power state
func (s *RESTServer) HandleGetPowerState(w http.ResponseWriter, r *http.Request) {
	state, err := s.radio.PowerState()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

// HandleSetPowerState changes the power state
func (s *RESTServer) HandleSetPowerState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state" validate:"required,oneof=off sleep standby idle rx tx"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := radio.ParsePowerState(req.State)
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	if err := s.radio.SetPowerState(state); err != nil {
		s.respondRadioError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

// ========== Configuration ==========

// ConfigView is the JSON form of the radio configuration. The network key
// is never returned.
type ConfigView struct {
	FrequencyHz   uint32             `json:"frequencyHz"`
	Channel       uint8              `json:"channel"`
	TxPower       radio.TxPower      `json:"txPower"`
	DataRate      radio.DataRate     `json:"dataRate"`
	Modulation    radio.Modulation   `json:"modulation"`
	Security      radio.SecurityMode `json:"security"`
	NetworkKeySet bool               `json:"networkKeySet"`
	DeviceAddress radio.Address      `json:"deviceAddress"`
	NetworkID     uint16             `json:"networkId"`
	AutoAck       bool               `json:"autoAck"`
	AutoRetry     bool               `json:"autoRetry"`
	MaxRetries    uint8              `json:"maxRetries"`
	TxTimeoutMs   int64              `json:"txTimeoutMs"`
}

func newConfigView(cfg radio.Config) ConfigView {
	return ConfigView{
		FrequencyHz:   cfg.FrequencyHz,
		Channel:       cfg.Channel,
		TxPower:       cfg.TxPower,
		DataRate:      cfg.DataRate,
		Modulation:    cfg.Modulation,
		Security:      cfg.Security,
		NetworkKeySet: !cfg.NetworkKey.IsZero(),
		DeviceAddress: cfg.DeviceAddress,
		NetworkID:     cfg.NetworkID,
		AutoAck:       cfg.AutoAck,
		AutoRetry:     cfg.AutoRetry,
		MaxRetries:    cfg.MaxRetries,
		TxTimeoutMs:   cfg.TxTimeout.Milliseconds(),
	}
}

// ConfigRequest updates selected configuration fields; omitted fields keep
// their current value
type ConfigRequest struct {
	FrequencyHz   *uint32 `json:"frequencyHz"`
	Channel       *uint8  `json:"channel" validate:"max=124"`
	TxPower       *string `json:"txPower" validate:"oneof=min low medium high max"`
	DataRate      *string `json:"dataRate" validate:"oneof=1k 10k 50k 100k 250k"`
	Modulation    *string `json:"modulation" validate:"oneof=fsk gfsk lora ook"`
	Security      *string `json:"security" validate:"oneof=none wep wpa aes128 aes256"`
	NetworkKey    *string `json:"networkKey" validate:"hex=16"`
	DeviceAddress *string `json:"deviceAddress" validate:"hex=8"`
	NetworkID     *uint16 `json:"networkId"`
	AutoAck       *bool   `json:"autoAck"`
	AutoRetry     *bool   `json:"autoRetry"`
	MaxRetries    *uint8  `json:"maxRetries" validate:"max=5"`
	TxTimeoutMs   *int    `json:"txTimeoutMs" validate:"min=1"`
}

// apply merges the request into cfg
func (req *ConfigRequest) apply(cfg radio.Config) (radio.Config, error) {
	var err error
	if req.FrequencyHz != nil {
		cfg.FrequencyHz = *req.FrequencyHz
	}
	if req.Channel != nil {
		cfg.Channel = *req.Channel
	}
	if req.TxPower != nil {
		if cfg.TxPower, err = radio.ParseTxPower(*req.TxPower); err != nil {
			return cfg, err
		}
	}
	if req.DataRate != nil {
		if cfg.DataRate, err = radio.ParseDataRate(*req.DataRate); err != nil {
			return cfg, err
		}
	}
	if req.Modulation != nil {
		if cfg.Modulation, err = radio.ParseModulation(*req.Modulation); err != nil {
			return cfg, err
		}
	}
	if req.Security != nil {
		if cfg.Security, err = radio.ParseSecurityMode(*req.Security); err != nil {
			return cfg, err
		}
	}
	if req.NetworkKey != nil {
		if cfg.NetworkKey, err = radio.ParseNetworkKey(*req.NetworkKey); err != nil {
			return cfg, err
		}
	}
	if req.DeviceAddress != nil {
		if cfg.DeviceAddress, err = radio.ParseAddress(*req.DeviceAddress); err != nil {
			return cfg, err
		}
	}
	if req.NetworkID != nil {
		cfg.NetworkID = *req.NetworkID
	}
	if req.AutoAck != nil {
		cfg.AutoAck = *req.AutoAck
	}
	if req.AutoRetry != nil {
		cfg.AutoRetry = *req.AutoRetry
	}
	if req.MaxRetries != nil {
		cfg.MaxRetries = *req.MaxRetries
	}
	if req.TxTimeoutMs != nil {
		cfg.TxTimeout = time.Duration(*req.TxTimeoutMs) * time.Millisecond
	}
	return cfg, nil
}

// HandleGetConfig returns the active configuration
func (s *RESTServer) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.radio.Config()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newConfigView(cfg))
}

// HandleConfigure updates the configuration. The radio must be idle.
func (s *RESTServer) HandleConfigure(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := s.radio.Config()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}

	cfg, err := req.apply(current)
	if err != nil {
		s.respondRadioError(w, err)
		return
	}

	if err := s.radio.Configure(cfg); err != nil {
		s.respondRadioError(w, err)
		return
	}

	log.Info().
		Str("user", claimsFrom(r.Context()).Username).
		Uint8("channel", cfg.Channel).
		Str("dataRate", cfg.DataRate.String()).
		Msg("Radio reconfigured via API")

	s.respondJSON(w, http.StatusOK, newConfigView(cfg))
}

// ========== Packets ==========

// HandleSendPacket transmits a packet. Synchronous sends answer once the
// outcome is known; async sends answer 202 with the transaction id.
func (s *RESTServer) HandleSendPacket(w http.ResponseWriter, r *http.Request) {
	var req models.TxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	pkt, err := req.Packet()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}

	if req.Async {
		id, err := s.radio.SendAsync(pkt)
		s.recordTx(r.Context(), pkt, id, err)
		if err != nil {
			s.respondRadioError(w, err)
			return
		}
		s.respondJSON(w, http.StatusAccepted, models.NewTxReply(id, nil))
		return
	}

	err = s.radio.Send(pkt)
	s.recordTx(r.Context(), pkt, 0, err)
	if err != nil {
		s.respondRadioError(w, err)
		return
	}

	resp := map[string]interface{}{"status": radio.TxSucceeded}
	if cfg, err := s.radio.Config(); err == nil {
		resp["airtimeUs"] = radio.CalculateAirtime(len(pkt.Payload), cfg.DataRate, cfg.Modulation)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *RESTServer) recordTx(ctx context.Context, pkt radio.Packet, id uint16, err error) {
	if s.recorder != nil {
		s.recorder.RecordTx(ctx, pkt, id, err)
	}
}

// HandleGetTxStatus returns the state of an async transmission. With
// wait_ms it blocks until the transmission settles or the wait expires.
func (s *RESTServer) HandleGetTxStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 16)
	if err != nil || id == 0 {
		s.respondError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	wait := queryDurationMs(r, "wait_ms", 0, maxTxWait)
	if wait == 0 {
		status, err := s.radio.TxStatus(uint16(id))
		if err != nil {
			s.respondRadioError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, status)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	status, err := s.radio.WaitTx(ctx, uint16(id))
	if errors.Is(err, context.DeadlineExceeded) {
		// still pending, report the current state
		status, err = s.radio.TxStatus(uint16(id))
	}
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// HandleReceivePacket pops the oldest received packet, waiting up to
// timeout_ms. An empty buffer with no wait answers 204.
func (s *RESTServer) HandleReceivePacket(w http.ResponseWriter, r *http.Request) {
	timeout := queryDurationMs(r, "timeout_ms", 0, maxReceiveWait)

	pkt, err := s.radio.Receive(r.Context(), timeout)
	if err != nil {
		if kind, ok := radio.KindOf(err); ok && kind == radio.KindBufferEmpty {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.respondRadioError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, pkt)
}

// HandlePendingPackets returns the receive buffer occupancy
func (s *RESTServer) HandlePendingPackets(w http.ResponseWriter, r *http.Request) {
	n, err := s.radio.Pending()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"pending":  n,
		"capacity": radio.RxBufferCapacity,
	})
}

// ========== Network ==========

// HandleScanNetworks lists visible networks
func (s *RESTServer) HandleScanNetworks(w http.ResponseWriter, r *http.Request) {
	max := queryInt(r, "max", 10)
	scanTime := queryDurationMs(r, "scan_ms", time.Second, maxScanTime)

	networks, err := s.radio.ScanNetworks(max, scanTime)
	if err != nil {
		s.respondRadioError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"networks": networks,
		"total":    len(networks),
	})
}

// HandleJoinNetwork associates with a network. Without a key the
// configured network key is used.
func (s *RESTServer) HandleJoinNetwork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NetworkID uint16 `json:"networkId" validate:"required"`
		Key       string `json:"key" validate:"hex=16"`
		TimeoutMs int    `json:"timeoutMs" validate:"min=0"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var key radio.NetworkKey
	if req.Key != "" {
		k, err := radio.ParseNetworkKey(req.Key)
		if err != nil {
			s.respondRadioError(w, err)
			return
		}
		key = k
	} else {
		cfg, err := s.radio.Config()
		if err != nil {
			s.respondRadioError(w, err)
			return
		}
		key = cfg.NetworkKey
	}

	if err := s.radio.JoinNetwork(req.NetworkID, key, time.Duration(req.TimeoutMs)*time.Millisecond); err != nil {
		s.respondRadioError(w, err)
		return
	}

	info, err := s.radio.NetworkInfo()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

// HandleLeaveNetwork drops the current association
func (s *RESTServer) HandleLeaveNetwork(w http.ResponseWriter, r *http.Request) {
	if err := s.radio.LeaveNetwork(); err != nil {
		s.respondRadioError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetNetworkInfo returns the current association
func (s *RESTServer) HandleGetNetworkInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.radio.NetworkInfo()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

// ========== Telemetry ==========

// HandleMeasureRSSI samples the signal strength
func (s *RESTServer) HandleMeasureRSSI(w http.ResponseWriter, r *http.Request) {
	rssi, err := s.radio.MeasureRSSI()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"rssi": rssi})
}

// HandleChannelUtilization samples channel occupancy
func (s *RESTServer) HandleChannelUtilization(w http.ResponseWriter, r *http.Request) {
	u, err := s.radio.ChannelUtilization()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"utilization": u})
}

// HandleGetStatistics returns the radio counters
func (s *RESTServer) HandleGetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.radio.Statistics()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// HandleResetStatistics zeroes the radio counters
func (s *RESTServer) HandleResetStatistics(w http.ResponseWriter, r *http.Request) {
	if err := s.radio.ResetStatistics(); err != nil {
		s.respondRadioError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSelfTest runs the built-in self test. A failed subsystem still
// answers with the result mask.
func (s *RESTServer) HandleSelfTest(w http.ResponseWriter, r *http.Request) {
	res, err := s.radio.SelfTest()
	if err != nil && res == 0 {
		s.respondRadioError(w, err)
		return
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
	}
	s.respondJSON(w, status, map[string]interface{}{
		"result": uint8(res),
		"passed": res.Passed(),
		"failed": res.Failed(),
	})
}

// HandleFirmwareVersion returns the firmware version string
func (s *RESTServer) HandleFirmwareVersion(w http.ResponseWriter, r *http.Request) {
	v, err := s.radio.FirmwareVersion(queryInt(r, "capacity", 32))
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"version": v})
}
