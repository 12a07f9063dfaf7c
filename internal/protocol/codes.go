package protocol

import "fmt"

// ErrorCode is a numeric diagnostic code carried by an instrument reply.
// The table mirrors the vendor's diagnostics sheet; 2xx codes are command
// rejections, 3xx codes are operation results.
type ErrorCode int

const (
	CodeCommandRejected     ErrorCode = 200
	CodeCommandRejectedBusy ErrorCode = 201

	CodeNoError                                             ErrorCode = 300
	CodeFailedToSetLaserOnOff                               ErrorCode = 301
	CodeFailedToSetRandomizePoints                          ErrorCode = 302
	CodeTwoFaceCheckFailedToleranceChecks                   ErrorCode = 303
	CodeDriftCheckFailedToleranceChecks                     ErrorCode = 304
	CodeMeasurementOfPointFailed                            ErrorCode = 305
	CodeDidFindOrSetPointGroupAndTargetName                 ErrorCode = 306
	CodeRequestedMeasurementProfileDoesNotExist             ErrorCode = 307
	CodeSAReportTemplateNotFound                            ErrorCode = 308
	CodeTwoFaceToleranceValueOutsideBoundsToleranceDefault  ErrorCode = 309
	CodeDriftToleranceOutsideBoundsDefaultSet               ErrorCode = 310
	CodeLeastSquaresToleranceOutsideBounds                  ErrorCode = 311
	CodeSATemplateFileNotFound                              ErrorCode = 312
	CodeRefGroupNotFoundInTemplateFile                      ErrorCode = 313
	CodeWorkingFrameNotFound                                ErrorCode = 314
	CodeNewStationNotAddedOrCouldNotConnect                 ErrorCode = 315
	CodeSaveSAJobFileFailed                                 ErrorCode = 316
	CodeSettingLockFailed                                   ErrorCode = 317
	CodeResetT2SAFailed                                     ErrorCode = 318
	CodeCommandToHaltT2SAFailed                             ErrorCode = 319
	CodeSettingT2SAToTelescopeCurrentPositionFailed         ErrorCode = 320
	CodeFailedSetNumberOfTimePointsAreSampled               ErrorCode = 321
	CodeCouldNotSetNumberOfMeasurementPointIterations       ErrorCode = 322
	CodeCouldNotStartInstrumentInterface                    ErrorCode = 323
	CodeChangeFaceFailed                                    ErrorCode = 324
	CodeFailToCreateMeasuredFrame                           ErrorCode = 325
	CodeFailLeastSquaresBestFit                             ErrorCode = 326
	CodeFailedToLocateInstrumentToRefPtGrp                  ErrorCode = 327
	CodeLevelCompensatorNotSet                              ErrorCode = 328
	CodeAddNewStationFailed                                 ErrorCode = 329
	CodeCommandToHaltT2SASucceeded                          ErrorCode = 330
	CodeFailedToLockStation                                 ErrorCode = 331
	CodeFailedToIncMeasIndex                                ErrorCode = 332
	CodeFailedToSetMeasIndex                                ErrorCode = 333
	CodeApplyT2SAToTelescopeCurrentPositionFailed           ErrorCode = 334
	CodeLoadTrackerCompensationFailed                       ErrorCode = 335
	CodeFailedToSetMeasInc                                  ErrorCode = 336
	CodeFailedToSetSim                                      ErrorCode = 337
	CodeInstrumentNotReady                                  ErrorCode = 338
	CodeClearInstrumentErrorFailed                          ErrorCode = 339
	CodeFailedPointGroupMeasurement                         ErrorCode = 340
	CodeNotConnectedToSA                                    ErrorCode = 341
	CodeAutoLockNotSet                                      ErrorCode = 342
	CodeHoldPositionNoBeamLockNotSet                        ErrorCode = 343
	CodeSettingFileNotValid                                 ErrorCode = 344
	CodeSettingT2SAToTelescopeDomeCurrentPositionFailed     ErrorCode = 345
	CodeObjectNotFoundInSAJob                               ErrorCode = 346
	CodeInstrumentIdxNotValid                               ErrorCode = 347
)

var codeNames = map[ErrorCode]string{
	CodeCommandRejected:                                    "CommandRejected",
	CodeCommandRejectedBusy:                                "CommandRejectedBusy",
	CodeNoError:                                            "NoError",
	CodeFailedToSetLaserOnOff:                              "FailedToSetLaserOnOff",
	CodeFailedToSetRandomizePoints:                         "FailedToSetRandomizePoints",
	CodeTwoFaceCheckFailedToleranceChecks:                  "TwoFaceCheckFailedToleranceChecks",
	CodeDriftCheckFailedToleranceChecks:                    "DriftCheckFailedToleranceChecks",
	CodeMeasurementOfPointFailed:                           "MeasurementOfPointFailed",
	CodeDidFindOrSetPointGroupAndTargetName:                "DidFindOrSetPointGroupAndTargetName",
	CodeRequestedMeasurementProfileDoesNotExist:            "RequestedMeasurementProfileDoesNotExist",
	CodeSAReportTemplateNotFound:                           "SAReportTemplateNotFound",
	CodeTwoFaceToleranceValueOutsideBoundsToleranceDefault: "TwoFaceToleranceValueOutsideBoundsToleranceDefault",
	CodeDriftToleranceOutsideBoundsDefaultSet:              "DriftToleranceOutsideBoundsDefaultSet",
	CodeLeastSquaresToleranceOutsideBounds:                 "LeastSquaresToleranceOutsideBounds",
	CodeSATemplateFileNotFound:                             "SATemplateFileNotFound",
	CodeRefGroupNotFoundInTemplateFile:                     "RefGroupNotFoundInTemplateFile",
	CodeWorkingFrameNotFound:                               "WorkingFrameNotFound",
	CodeNewStationNotAddedOrCouldNotConnect:                "NewStationNotAddedOrCouldNotConnect",
	CodeSaveSAJobFileFailed:                                "SaveSAJobFileFailed",
	CodeSettingLockFailed:                                  "SettingLockFailed",
	CodeResetT2SAFailed:                                    "ResetT2SAFailed",
	CodeCommandToHaltT2SAFailed:                            "CommandToHaltT2SAFailed",
	CodeSettingT2SAToTelescopeCurrentPositionFailed:        "SettingT2SAToTelescopeCurrentPositionFailed",
	CodeFailedSetNumberOfTimePointsAreSampled:              "FailedSetNumberOfTimePointsAreSampled",
	CodeCouldNotSetNumberOfMeasurementPointIterations:      "CouldNotSetNumberOfMeasurementPointIterations",
	CodeCouldNotStartInstrumentInterface:                   "CouldNotStartInstrumentInterface",
	CodeChangeFaceFailed:                                   "ChangeFaceFailed",
	CodeFailToCreateMeasuredFrame:                          "FailToCreateMeasuredFrame",
	CodeFailLeastSquaresBestFit:                            "FailLeastSquaresBestFit",
	CodeFailedToLocateInstrumentToRefPtGrp:                 "FailedToLocateInstrumentToRefPtGrp",
	CodeLevelCompensatorNotSet:                             "LevelCompensatorNotSet",
	CodeAddNewStationFailed:                                "AddNewStationFailed",
	CodeCommandToHaltT2SASucceeded:                         "CommandToHaltT2SASucceeded",
	CodeFailedToLockStation:                                "FailedToLockStation",
	CodeFailedToIncMeasIndex:                               "FailedToIncMeasIndex",
	CodeFailedToSetMeasIndex:                               "FailedToSetMeasIndex",
	CodeApplyT2SAToTelescopeCurrentPositionFailed:          "ApplyT2SAToTelescopeCurrentPositionFailed",
	CodeLoadTrackerCompensationFailed:                      "LoadTrackerCompensationFailed",
	CodeFailedToSetMeasInc:                                 "FailedToSetMeasInc",
	CodeFailedToSetSim:                                     "FailedToSetSim",
	CodeInstrumentNotReady:                                 "InstrumentNotReady",
	CodeClearInstrumentErrorFailed:                         "ClearInstrumentErrorFailed",
	CodeFailedPointGroupMeasurement:                        "FailedPointGroupMeasurement",
	CodeNotConnectedToSA:                                   "NotConnectedToSA",
	CodeAutoLockNotSet:                                     "AutoLockNotSet",
	CodeHoldPositionNoBeamLockNotSet:                       "HoldPositionNoBeamLockNotSet",
	CodeSettingFileNotValid:                                "SettingFileNotValid",
	CodeSettingT2SAToTelescopeDomeCurrentPositionFailed:    "SettingT2SAToTelescopeDomeCurrentPositionFailed",
	CodeObjectNotFoundInSAJob:                              "ObjectNotFoundInSAJob",
	CodeInstrumentIdxNotValid:                              "InstrumentIdxNotValid",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}
