// Package repository define los contratos de persistencia del dominio:
// conexiones (con su lease), métricas diarias y actividades.
//
// Implementaciones:
//
//	store/pg      PostgreSQL (pgxpool)
//	store/memory  mapas en memoria (dev y tests)
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - Un registro inexistente se reporta con ErrNotFound
//   - Las fechas de métricas son medianoche UTC (types.Day)
package repository
