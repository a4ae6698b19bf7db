// Package ui is the terminal front end of relayctl.
//
// The model renders one row per visible property: a slider for temperature,
// brightness and gamma, a switch for color inversion. Mouse and keyboard input
// are translated into controller events; the model never changes values
// itself. State flows back as controller snapshots delivered through a Bridge,
// which keeps only the newest snapshot so a slow terminal never stalls the
// controller.
//
// # Input
//
//   - Left button: press jumps a slider to the pointer, drag moves it, release ends the drag
//   - Wheel: steps the slider under the pointer; with shift, ctrl or alt the step is fine
//   - Right button: resets the property to its default
//   - Keys: up/down select, left/right step, shift+left/right fine step,
//     space toggles, r resets, esc/q quits
//
// Fade opacity is rendered by blending every color towards the background.
package ui
