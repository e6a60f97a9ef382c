package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedMessage flags inbound payloads that cannot be turned into a
// command. Handlers log and drop these; printer state is never touched.
var ErrMalformedMessage = errors.New("malformed message")

// defaultTargetTemperature is applied when a set_temperature command omits
// the temperature field.
const defaultTargetTemperature = 200

// CommandKind names the operation a routed message asks for.
type CommandKind string

const (
	CmdStartJob       CommandKind = "start_job"
	CmdPauseJob       CommandKind = "pause_job"
	CmdResumeJob      CommandKind = "resume_job"
	CmdCancelJob      CommandKind = "cancel_job"
	CmdQueryStatus    CommandKind = "query_status"
	CmdHome           CommandKind = "home"
	CmdSetTemperature CommandKind = "set_temperature"
	CmdUpdateConfig   CommandKind = "update_config"
)

// Command is the routed form of an inbound message. Routing is pure: a
// Command carries everything needed to apply the operation later.
type Command struct {
	Kind        CommandKind
	JobID       string
	FileURL     string
	Material    string
	Temperature float64
}

type jobMessage struct {
	Type     string `json:"type"`
	JobID    string `json:"job_id"`
	FileURL  string `json:"file_url"`
	Material string `json:"material"`
}

type commandMessage struct {
	Command     string   `json:"command"`
	Temperature *float64 `json:"temperature"`
}

type configMessage struct {
	Material string `json:"material"`
}

// SuffixFromTopic extracts the routing suffix from a full topic name, which
// must look like 3dprinter/{printer_id}/{suffix}.
func SuffixFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicNamespace || parts[1] == "" || parts[2] == "" {
		return "", fmt.Errorf("%w: unexpected topic %q", ErrMalformedMessage, topic)
	}
	return parts[2], nil
}

// Route turns a raw message into a Command. It never touches printer state;
// anything it cannot classify comes back wrapping ErrMalformedMessage.
func Route(topicSuffix string, payload []byte) (Command, error) {
	switch topicSuffix {
	case TopicJobs:
		return routeJobMessage(payload)
	case TopicCommands:
		return routeCommandMessage(payload)
	case TopicConfig:
		return routeConfigMessage(payload)
	default:
		return Command{}, fmt.Errorf("%w: unknown topic suffix %q", ErrMalformedMessage, topicSuffix)
	}
}

func routeJobMessage(payload []byte) (Command, error) {
	var msg jobMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Command{}, fmt.Errorf("%w: invalid json: %v", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case "start":
		if msg.JobID == "" {
			return Command{}, fmt.Errorf("%w: start job missing job_id", ErrMalformedMessage)
		}
		if msg.FileURL == "" {
			return Command{}, fmt.Errorf("%w: start job missing file_url", ErrMalformedMessage)
		}
		return Command{
			Kind:     CmdStartJob,
			JobID:    msg.JobID,
			FileURL:  msg.FileURL,
			Material: msg.Material,
		}, nil
	case "pause":
		return Command{Kind: CmdPauseJob}, nil
	case "resume":
		return Command{Kind: CmdResumeJob}, nil
	case "cancel":
		return Command{Kind: CmdCancelJob}, nil
	case "":
		return Command{}, fmt.Errorf("%w: job message missing type", ErrMalformedMessage)
	default:
		return Command{}, fmt.Errorf("%w: unknown job message type %q", ErrMalformedMessage, msg.Type)
	}
}

func routeCommandMessage(payload []byte) (Command, error) {
	var msg commandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Command{}, fmt.Errorf("%w: invalid json: %v", ErrMalformedMessage, err)
	}

	switch msg.Command {
	case "status":
		return Command{Kind: CmdQueryStatus}, nil
	case "home":
		return Command{Kind: CmdHome}, nil
	case "set_temperature":
		temp := float64(defaultTargetTemperature)
		if msg.Temperature != nil {
			temp = *msg.Temperature
		}
		return Command{Kind: CmdSetTemperature, Temperature: temp}, nil
	case "":
		return Command{}, fmt.Errorf("%w: command message missing command", ErrMalformedMessage)
	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", ErrMalformedMessage, msg.Command)
	}
}

func routeConfigMessage(payload []byte) (Command, error) {
	var msg configMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Command{}, fmt.Errorf("%w: invalid json: %v", ErrMalformedMessage, err)
	}

	// only material is merged; every other key is ignored
	return Command{Kind: CmdUpdateConfig, Material: msg.Material}, nil
}
