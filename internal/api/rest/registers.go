package rest

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenDriveEmulator/internal/dictionary"
	"github.com/KevinKickass/OpenDriveEmulator/internal/emulator"
	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

type registerView struct {
	Address     string         `json:"address" yaml:"address"`
	UID         string         `json:"uid" yaml:"uid"`
	DataType    types.DataType `json:"data_type" yaml:"data_type"`
	Access      string         `json:"access,omitempty" yaml:"access,omitempty"`
	Units       string         `json:"units,omitempty" yaml:"units,omitempty"`
	Cyclic      string         `json:"cyclic,omitempty" yaml:"cyclic,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Default     *string        `json:"default,omitempty" yaml:"default,omitempty"`
}

type registerListing struct {
	Subnode   uint8                `json:"subnode" yaml:"subnode"`
	Identity  types.DeviceIdentity `json:"identity" yaml:"identity"`
	Registers []registerView       `json:"registers" yaml:"registers"`
	Count     int                  `json:"count" yaml:"count"`
}

// readResult mirrors the reply the drive would send for a Read.
type readResult struct {
	Subnode   uint8   `json:"subnode"`
	Address   string  `json:"address"`
	UID       string  `json:"uid,omitempty"`
	Type      string  `json:"type,omitempty"`
	Value     any     `json:"value,omitempty"`
	ErrorCode *uint32 `json:"error_code,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// GET /api/v1/subnodes/:subnode/registers[?format=yaml]
func (s *Server) listRegisters(c *gin.Context) {
	subnode, ok := s.subnodeParam(c)
	if !ok {
		return
	}

	engine := s.lm.Engine()
	dict := engine.Dictionary(subnode)
	if dict == nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Sub-node has no dictionary", nil))
		return
	}

	entries := dict.Entries()
	listing := registerListing{
		Subnode:   subnode,
		Identity:  dict.Identity(),
		Registers: make([]registerView, 0, len(entries)),
		Count:     len(entries),
	}
	for _, e := range entries {
		view := registerView{
			Address:     dictionary.FormatAddress(e.Address),
			UID:         e.UID,
			DataType:    e.DataType,
			Access:      e.Access,
			Units:       e.Units,
			Cyclic:      e.Cyclic,
			Description: e.Description,
		}
		if defaults := engine.Defaults(); defaults != nil {
			if value, err := defaults.Default(e.UID); err == nil {
				view.Default = &value
			}
		}
		listing.Registers = append(listing.Registers, view)
	}

	if strings.EqualFold(c.Query("format"), "yaml") {
		data, err := yaml.Marshal(listing)
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrCodeUnavailable, "Failed to encode YAML", err.Error()))
			return
		}
		c.Data(http.StatusOK, "application/yaml", data)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// GET /api/v1/subnodes/:subnode/registers/:address
func (s *Server) readRegister(c *gin.Context) {
	subnode, ok := s.subnodeParam(c)
	if !ok {
		return
	}

	address, err := dictionary.ParseInputAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrCodeInvalidAddress, "Invalid register address", err.Error()))
		return
	}

	engine := s.lm.Engine()
	value := engine.Resolve(types.Request{Subnode: subnode, Address: address, Command: types.CommandRead})

	result := readResult{
		Subnode: subnode,
		Address: dictionary.FormatAddress(address),
	}
	if dict := engine.Dictionary(subnode); dict != nil {
		if uid, err := dict.LookupUID(address); err == nil {
			result.UID = uid
		}
	}

	if reply, ok := value.(emulator.Error); ok {
		code := reply.Code
		result.ErrorCode = &code
		if reply.Reason != nil {
			result.Reason = reply.Reason.Error()
		}
	} else {
		result.Type = value.DataType().String()
		result.Value = emulator.DisplayValue(value)
	}

	c.JSON(http.StatusOK, result)
}

// GET /api/v1/defaults
func (s *Server) listDefaults(c *gin.Context) {
	defaults := s.lm.Engine().Defaults()
	if defaults == nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "No default table loaded", nil))
		return
	}

	entries := defaults.Entries()
	c.JSON(http.StatusOK, gin.H{
		"identity": defaults.Identity(),
		"defaults": entries,
		"count":    len(entries),
	})
}

// GET /api/v1/defaults/:uid
func (s *Server) getDefault(c *gin.Context) {
	defaults := s.lm.Engine().Defaults()
	if defaults == nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "No default table loaded", nil))
		return
	}

	entry, ok := defaults.Lookup(c.Param("uid"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Default not found", c.Param("uid")))
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) subnodeParam(c *gin.Context) (uint8, bool) {
	n, err := strconv.ParseUint(c.Param("subnode"), 10, 8)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrCodeInvalidSubnode, "Invalid sub-node", err.Error()))
		return 0, false
	}
	return uint8(n), true
}
