package livequery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"CrateFM/logger"
)

// RedisBroadcaster 通过 Redis Pub/Sub 把变更通知广播到同一数据域的所有进程。
// 每个实例带一个随机实例ID，接收侧丢弃自己发布的通知，避免重复重算。
type RedisBroadcaster struct {
	client     *redis.Client
	channel    string
	instanceID string

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBroadcaster 创建广播器，channel 为承载变更通知的频道名
func NewRedisBroadcaster(client *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
	}
}

// Publish 发布变更通知，fire-and-forget：失败只记日志不重试
func (b *RedisBroadcaster) Publish(ctx context.Context, ev Event) error {
	ev.Origin = b.instanceID
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change notice: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change notice: %w", err)
	}
	return nil
}

// Start 订阅频道并开始接收远端通知
func (b *RedisBroadcaster) Start(ctx context.Context, onEvent func(Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return fmt.Errorf("broadcaster already started")
	}

	subCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.pubsub = b.client.Subscribe(subCtx, b.channel)

	// 确认订阅建立，避免启动早期丢通知
	if _, err := b.pubsub.Receive(subCtx); err != nil {
		cancel()
		b.pubsub = nil
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	ch := b.pubsub.Channel()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handleMessage(msg, onEvent)
			}
		}
	}()

	logger.Info("变更通知订阅已启动",
		logger.String("channel", b.channel),
		logger.String("instanceId", b.instanceID))
	return nil
}

func (b *RedisBroadcaster) handleMessage(msg *redis.Message, onEvent func(Event)) {
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		logger.Warn("无法解析变更通知", logger.ErrorField(err))
		return
	}
	// 过滤来自自己实例的通知，本地订阅早已同步重算过
	if ev.Origin == b.instanceID {
		return
	}
	onEvent(ev)
}

// Close 停止接收并关闭订阅
func (b *RedisBroadcaster) Close() error {
	b.mu.Lock()
	pubsub := b.pubsub
	cancel := b.cancel
	b.pubsub = nil
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if pubsub != nil {
		err = pubsub.Close()
	}
	b.wg.Wait()
	return err
}

// InstanceID 返回实例ID（测试用）
func (b *RedisBroadcaster) InstanceID() string {
	return b.instanceID
}
