package domain

import "errors"

var (
	ErrMeetingNotFound     = errors.New("meeting not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrConnectionExists    = errors.New("connection already registered")
	ErrParticipantIDInUse  = errors.New("participant id already in use")
	ErrAlreadyInMeeting    = errors.New("participant already in a meeting")
	ErrNotInMeeting        = errors.New("participant is not in a meeting")
	ErrTargetUnreachable   = errors.New("target participant is not reachable")
	ErrInvalidTransition   = errors.New("invalid negotiation transition")
)
