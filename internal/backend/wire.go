package backend

import (
	"fmt"
	"time"

	"github.com/praxishq/dashboard-core/internal/appointment"
	"github.com/praxishq/dashboard-core/internal/chat"
	"github.com/praxishq/dashboard-core/internal/schedule"
	"github.com/praxishq/dashboard-core/internal/timeslot"
)

const wireDate = "2006-01-02"

type windowDTO struct {
	Start string `json:"start"` // "09:00"
	End   string `json:"end"`   // "18:00"
}

type weeklyDTO struct {
	Monday    *windowDTO `json:"monday,omitempty"`
	Tuesday   *windowDTO `json:"tuesday,omitempty"`
	Wednesday *windowDTO `json:"wednesday,omitempty"`
	Thursday  *windowDTO `json:"thursday,omitempty"`
	Friday    *windowDTO `json:"friday,omitempty"`
	Saturday  *windowDTO `json:"saturday,omitempty"`
	Sunday    *windowDTO `json:"sunday,omitempty"`
}

type nonWorkDateDTO struct {
	Date      string `json:"date"`
	Reason    string `json:"reason"`
	Recurrent bool   `json:"recurrent"`
}

type scheduleDTO struct {
	Weekly       weeklyDTO        `json:"weekly"`
	NonWorkDates []nonWorkDateDTO `json:"nonWorkDates"`
}

func (w *weeklyDTO) slot(day time.Weekday) **windowDTO {
	switch day {
	case time.Monday:
		return &w.Monday
	case time.Tuesday:
		return &w.Tuesday
	case time.Wednesday:
		return &w.Wednesday
	case time.Thursday:
		return &w.Thursday
	case time.Friday:
		return &w.Friday
	case time.Saturday:
		return &w.Saturday
	default:
		return &w.Sunday
	}
}

func encodeSchedule(def schedule.Definition) scheduleDTO {
	var dto scheduleDTO
	for day, win := range def.Weekly {
		*dto.Weekly.slot(day) = &windowDTO{
			Start: timeslot.FormatMinutes(win.Start),
			End:   timeslot.FormatMinutes(win.End),
		}
	}
	for _, n := range def.NonWorkDates {
		dto.NonWorkDates = append(dto.NonWorkDates, nonWorkDateDTO{
			Date:      n.Date.Format(wireDate),
			Reason:    n.Reason,
			Recurrent: n.Recurrent,
		})
	}
	return dto
}

func decodeSchedule(dto scheduleDTO) (schedule.Definition, error) {
	def := schedule.Definition{Weekly: schedule.Weekly{}}
	days := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	for _, day := range days {
		win := *dto.Weekly.slot(day)
		if win == nil {
			continue
		}
		r, err := timeslot.ParseRange(win.Start + "-" + win.End)
		if err != nil {
			return schedule.Definition{}, fmt.Errorf("backend: schedule window for %s: %w", day, err)
		}
		def.Weekly[day] = r
	}
	for _, n := range dto.NonWorkDates {
		date, err := time.Parse(wireDate, n.Date)
		if err != nil {
			return schedule.Definition{}, fmt.Errorf("backend: non-work date %q: %w", n.Date, err)
		}
		def.NonWorkDates = append(def.NonWorkDates, schedule.NonWorkDate{
			Date:      date,
			Reason:    n.Reason,
			Recurrent: n.Recurrent,
		})
	}
	return def, nil
}

type appointmentDTO struct {
	ID         string `json:"id,omitempty"`
	BusinessID string `json:"businessId"`
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName,omitempty"`
	Date       string `json:"date"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Notes      string `json:"notes,omitempty"`
}

func encodeAppointment(a appointment.Appointment) appointmentDTO {
	return appointmentDTO{
		ID:         a.ID,
		BusinessID: a.BusinessID,
		ClientID:   a.ClientID,
		ClientName: a.ClientName,
		Date:       a.Date.UTC().Format(wireDate),
		StartTime:  timeslot.FormatMinutes(a.Slot.Start),
		EndTime:    timeslot.FormatMinutes(a.Slot.End),
		Notes:      a.Notes,
	}
}

func decodeAppointment(dto appointmentDTO) (appointment.Appointment, error) {
	date, err := time.Parse(wireDate, dto.Date)
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("backend: appointment date %q: %w", dto.Date, err)
	}
	slot, err := timeslot.ParseRange(dto.StartTime + "-" + dto.EndTime)
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("backend: appointment %s slot: %w", dto.ID, err)
	}
	return appointment.Appointment{
		ID:         dto.ID,
		BusinessID: dto.BusinessID,
		ClientID:   dto.ClientID,
		ClientName: dto.ClientName,
		Date:       date,
		Slot:       slot,
		Notes:      dto.Notes,
	}, nil
}

type conversationDTO struct {
	ID                     string         `json:"id"`
	ClientID               string         `json:"clientId"`
	BusinessID             string         `json:"businessId"`
	ClientName             string         `json:"clientName,omitempty"`
	Messages               []chat.Message `json:"messages"`
	NewClientMessagesCount int            `json:"newClientMessagesCount"`
	AssistantEnabled       bool           `json:"assistantEnabled"`
}

func decodeConversation(dto conversationDTO) chat.Conversation {
	return chat.Conversation{
		ID:                     dto.ID,
		ClientID:               dto.ClientID,
		BusinessID:             dto.BusinessID,
		ClientName:             dto.ClientName,
		Messages:               dto.Messages,
		NewClientMessagesCount: dto.NewClientMessagesCount,
		AssistantEnabled:       dto.AssistantEnabled,
	}
}
