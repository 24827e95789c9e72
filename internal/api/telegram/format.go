package telegram

import (
	"fmt"
	"strings"

	"safe-eye-console/internal/domain/entity"
)

func formatIncidents(title string, incidents []entity.Incident) string {
	var sb strings.Builder
	sb.WriteString(title)
	for i, incident := range incidents {
		if i == maxListed {
			fmt.Fprintf(&sb, "\n… и ещё %d", len(incidents)-maxListed)
			break
		}
		location := incident.Location
		if location == "" {
			location = "Unknown"
		}
		marker := "•"
		if incident.Severity() == entity.SeverityCritical {
			marker = "‼️"
		}
		fmt.Fprintf(&sb, "\n%s #%d %s — %s, %s",
			marker, incident.ID, incident.IncidentType, location, incident.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	return sb.String()
}

func formatDetections(detections []entity.Detection) string {
	lines := make([]string, 0, len(detections)+1)
	lines = append(lines, fmt.Sprintf("🔍 Обнаружено объектов: %d", len(detections)))
	for _, d := range detections {
		lines = append(lines, "• "+d.String())
	}
	return strings.Join(lines, "\n")
}

func formatSnapshot(s entity.StreamSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👁 Поток: %s", s.State)
	if s.Connected {
		sb.WriteString(" 🟢")
	} else {
		sb.WriteString(" 🔴")
	}
	if s.CameraActive {
		fmt.Fprintf(&sb, "\n🎥 Камера активна, кадров отправлено: %d", s.FramesSent)
	}
	if s.Error != "" {
		fmt.Fprintf(&sb, "\n⚠️ %s", s.Error)
	}
	if s.LastStatus != "" {
		fmt.Fprintf(&sb, "\nℹ️ %s", s.LastStatus)
	}
	if len(s.Detections) == 0 {
		sb.WriteString("\nДетекций нет.")
		return sb.String()
	}
	sb.WriteString("\n")
	sb.WriteString(formatDetections(s.Detections))
	return sb.String()
}
