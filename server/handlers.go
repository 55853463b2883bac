package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"CrateFM/core/library"
	"CrateFM/logger"
	"CrateFM/model"
	"CrateFM/store"
)

// APIHandler 持有资料库操作面，暴露HTTP接口
type APIHandler struct {
	manager *library.Manager
}

// NewAPIHandler 创建接口处理器
func NewAPIHandler(manager *library.Manager) *APIHandler {
	return &APIHandler{manager: manager}
}

// Register 挂载全部路由
func (h *APIHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/playlists", h.ListPlaylistsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists", h.CreatePlaylistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}", h.GetPlaylistHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}", h.UpdatePlaylistHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/playlists/{id}", h.DeletePlaylistHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/songs", h.AddSongHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}/songs/{songId}", h.RemoveSongHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/reorder", h.ReorderHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/playlists/{id}/export", h.ExportBundleHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/songs/{id}", h.UpdateSongHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/songs/{id}/audio", h.SongAudioHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/bundles/import", h.ImportBundleHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/payloads/load", h.LoadPayloadHandler).Methods(http.MethodPost)
	router.HandleFunc("/ws/subscribe", h.SubscribeHandler)
}

func (h *APIHandler) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.manager.GetAllPlaylists(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, playlists)
}

func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	playlist, err := h.manager.CreatePlaylist(r.Context(), library.CreatePlaylistParams{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, playlist)
}

func (h *APIHandler) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	playlist, err := h.manager.GetPlaylist(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if playlist == nil {
		http.Error(w, "playlist not found", http.StatusNotFound)
		return
	}
	songs, err := h.manager.GetPlaylistSongs(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"playlist": playlist, "songs": songs})
}

func (h *APIHandler) UpdatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Title       *string   `json:"title"`
		Description *string   `json:"description"`
		SongIDs     *[]string `json:"songIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	playlist, err := h.manager.UpdatePlaylist(r.Context(), id, model.UpdatePlaylistParams{
		Title:       req.Title,
		Description: req.Description,
		SongIDs:     req.SongIDs,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, playlist)
}

func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.DeletePlaylist(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddSongHandler 接收 multipart 上传：audio 文件字段 + 元数据字段
func (h *APIHandler) AddSongHandler(w http.ResponseWriter, r *http.Request) {
	playlistID := mux.Vars(r)["id"]
	if err := r.ParseMultipartForm(256 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "missing audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read audio file", http.StatusBadRequest)
		return
	}

	duration, _ := strconv.ParseFloat(r.FormValue("duration"), 64)
	song, err := h.manager.AddSongToPlaylist(r.Context(), playlistID, library.AddSongParams{
		Title:            r.FormValue("title"),
		Artist:           r.FormValue("artist"),
		Album:            r.FormValue("album"),
		Duration:         duration,
		MimeType:         header.Header.Get("Content-Type"),
		OriginalFilename: header.Filename,
	}, audio)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, song)
}

func (h *APIHandler) RemoveSongHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.manager.RemoveSongFromPlaylist(r.Context(), vars["id"], vars["songId"]); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ReorderHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	playlist, err := h.manager.ReorderSongs(r.Context(), id, req.From, req.To)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, playlist)
}

func (h *APIHandler) UpdateSongHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Title            *string  `json:"title"`
		Artist           *string  `json:"artist"`
		Album            *string  `json:"album"`
		Duration         *float64 `json:"duration"`
		Position         *int     `json:"position"`
		MimeType         *string  `json:"mimeType"`
		OriginalFilename *string  `json:"originalFilename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	song, err := h.manager.UpdateSong(r.Context(), id, model.UpdateSongParams{
		Title:            req.Title,
		Artist:           req.Artist,
		Album:            req.Album,
		Duration:         req.Duration,
		Position:         req.Position,
		MimeType:         req.MimeType,
		OriginalFilename: req.OriginalFilename,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, song)
}

// SongAudioHandler 返回歌曲的音频字节；未物化时返回409提示先做懒加载
func (h *APIHandler) SongAudioHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	song, err := h.manager.GetSong(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if song == nil {
		http.Error(w, "song not found", http.StatusNotFound)
		return
	}
	if !song.HasAudio() || song.NeedsPayloadLoad {
		http.Error(w, "audio payload not loaded", http.StatusConflict)
		return
	}
	data, err := h.manager.OpenPayload(r.Context(), song.AudioKey)
	if err != nil {
		respondError(w, err)
		return
	}
	if song.MimeType != "" {
		w.Header().Set("Content-Type", song.MimeType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (h *APIHandler) ImportBundleHandler(w http.ResponseWriter, r *http.Request) {
	var bundle model.Bundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		http.Error(w, "invalid bundle", http.StatusBadRequest)
		return
	}
	result, err := h.manager.ImportBundle(r.Context(), &bundle)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ExportBundleHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	bundle, err := h.manager.ExportBundle(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bundle)
}

func (h *APIHandler) LoadPayloadHandler(w http.ResponseWriter, r *http.Request) {
	var ref library.PayloadRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		http.Error(w, "invalid payload ref", http.StatusBadRequest)
		return
	}
	if err := h.manager.LoadPayload(r.Context(), ref); err != nil {
		if errors.Is(err, library.ErrPayloadFetch) {
			respondJSON(w, http.StatusBadGateway, map[string]any{"loaded": false, "error": err.Error()})
			return
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"loaded": true})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("写响应失败", logger.ErrorField(err))
	}
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrStorageUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
