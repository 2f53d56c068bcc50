package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrExecutorShutdown      = sterrors.New("trust: executor is shut down")
	ErrSpawnedTaskPanicked   = sterrors.New("trust: spawned task panicked")
	ErrTaskRequired          = sterrors.New("trust: task function is required")
	ErrExecutorRequired      = sterrors.New("trust: executor is required")
	ErrProcessorRequired     = sterrors.New("trust: processor is required")
	ErrProcessorNotCloneable = sterrors.New("trust: processor must implement Clone to run more than one instance")

	// ErrChannelSend is the parent of every request submission failure.
	ErrChannelSend         = sterrors.New("trust: failed to send message")
	ErrChannelFull         = fmt.Errorf("%w: channel is full", ErrChannelSend)
	ErrChannelDisconnected = fmt.Errorf("%w: channel is disconnected", ErrChannelSend)

	ErrDisconnected         = sterrors.New("trust: reply channel disconnected before a reply was sent")
	ErrReceiverClosed       = sterrors.New("trust: reply receiver is closed")
	ErrReplyAlreadySent     = sterrors.New("trust: reply was already sent")
	ErrReplyAlreadyReceived = sterrors.New("trust: reply was already received")

	ErrClientRequired     = sterrors.New("trust: reqrep client is required")
	ErrCodecRequired      = sterrors.New("trust: codec is required")
	ErrTopicRequired      = sterrors.New("trust: topic is required")
	ErrGatewayRequired    = sterrors.New("trust: gateway is required")
	ErrProtoPointerNeeded = sterrors.New("trust: proto message type must be a pointer")
)
