package orders

import "storefront_back_end/internal/models"

// transitions liste les statuts atteignables depuis chaque statut.
// completed et cancelled sont terminaux.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:    {models.StatusProcessing, models.StatusCancelled},
	models.StatusProcessing: {models.StatusShipped, models.StatusCancelled},
	models.StatusShipped:    {models.StatusCompleted, models.StatusCancelled},
}

// CanTransition indique si from → to est autorisé. Rester dans le même
// statut est toujours permis.
func CanTransition(from, to models.OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
