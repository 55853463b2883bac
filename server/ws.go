package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"CrateFM/core/livequery"
	"CrateFM/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SubscribeHandler 把一个实时查询挂到 WebSocket 连接上：
// 连接建立后立即推送当前视图，之后每次视图变化推送一次新结果。
// 查询参数：collection=playlists|songs，playlistId（可选，过滤歌曲归属），
// fields（可选，逗号分隔的投影字段），limit（可选）。
func (h *APIHandler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	playlistID := r.URL.Query().Get("playlistId")
	var fields []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		fields = strings.Split(raw, ",")
	}

	var sub *livequery.Subscription
	var err error
	switch collection {
	case "playlists":
		sub, err = h.manager.SubscribeToPlaylists(r.Context(), fields)
	case "songs":
		if playlistID == "" {
			http.Error(w, "playlistId is required for songs subscriptions", http.StatusBadRequest)
			return
		}
		sub, err = h.manager.SubscribeToPlaylistSongs(r.Context(), playlistID, fields)
	default:
		http.Error(w, "unknown collection", http.StatusBadRequest)
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Unsubscribe()
		logger.Warn("WebSocket升级失败", logger.ErrorField(err))
		return
	}

	// 变更回调在写入方的调用链里执行，绝不能阻塞：
	// 推送走带缓冲的发送通道，满了就丢（下一次变更会带上最新视图）
	send := make(chan []livequery.Row, 16)
	send <- sub.Current()
	sub.OnChange(func(rows []livequery.Row) {
		select {
		case send <- rows:
		default:
			logger.Warn("订阅推送缓冲已满，丢弃一帧",
				logger.String("collection", collection))
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		// 读循环只用于感知客户端断开
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			sub.Unsubscribe()
			conn.Close()
		}()
		for {
			select {
			case <-done:
				return
			case rows := <-send:
				payload, err := json.Marshal(map[string]any{
					"collection": collection,
					"rows":       rows,
				})
				if err != nil {
					logger.Warn("序列化订阅推送失败", logger.ErrorField(err))
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	}()
}
